// internal/workers/loan/check-debt-ratio/models.go
package checkdebtratio

type Input struct {
	RecordID string                 `json:"recordId"`
	Payload  map[string]interface{} `json:"payload"`
}

type Output struct {
	RecordID string  `json:"recordId"`
	Check    string  `json:"check"`
	Passed   bool    `json:"passed"`
	Reason   string  `json:"reason,omitempty"`
	Ratio    float64 `json:"ratio"`
}
