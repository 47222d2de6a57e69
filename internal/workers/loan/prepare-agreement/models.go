// internal/workers/loan/prepare-agreement/models.go
package prepareagreement

import "loan-workers/internal/models"

type Input struct {
	RecordID string                 `json:"recordId"`
	Payload  map[string]interface{} `json:"payload"`
}

type Output struct {
	RecordID     string            `json:"recordId"`
	WithinLimits bool              `json:"withinLimits"`
	Violations   []string          `json:"violations"`
	Agreement    *models.Agreement `json:"agreement,omitempty"`
}
