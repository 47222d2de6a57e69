// internal/workers/loan/check-credit/models.go
package checkcredit

type Input struct {
	RecordID string                 `json:"recordId"`
	Payload  map[string]interface{} `json:"payload"`
}

type Output struct {
	RecordID string `json:"recordId"`
	Check    string `json:"check"`
	Passed   bool   `json:"passed"`
	Reason   string `json:"reason,omitempty"`
	Score    int    `json:"score"`
}
