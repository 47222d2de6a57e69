// internal/workers/loan/verify-completeness/models.go
package verifycompleteness

import "regexp"

type Input struct {
	RecordID string                 `json:"recordId"`
	Attempt  int                    `json:"attempt"`
	Payload  map[string]interface{} `json:"payload"`
}

// Output echoes the verification cycle number so the outcome handler
// can drop a redelivered verdict for an already-counted cycle.
type Output struct {
	RecordID      string       `json:"recordId"`
	Attempt       int          `json:"attempt"`
	Complete      bool         `json:"complete"`
	MissingFields []FieldError `json:"missingFields"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Predefined patterns
var (
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	// Optional +, digits, spaces and separators stripped before matching.
	phoneRegex = regexp.MustCompile(`^[\+]?[1-9][\d]{6,14}$`)
)
