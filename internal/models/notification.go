// internal/models/notification.go
package models

// Notification is an outbound applicant-facing message. The core only
// produces these; delivery is the notification worker's concern.
type Notification struct {
	ID       string                 `json:"id"`
	RecordID string                 `json:"recordId"`
	Type     string                 `json:"type"`    // "missing_fields", "status_update", "agreement_ready"
	Channel  string                 `json:"channel"` // "email", "sms"
	Message  string                 `json:"message"`
	Status   string                 `json:"status"` // "sent", "failed", "disabled"
	Payload  map[string]interface{} `json:"payload,omitempty"`
	SentAt   string                 `json:"sentAt,omitempty"`
}

const (
	NotificationMissingFields  = "missing_fields"
	NotificationStatusUpdate   = "status_update"
	NotificationAgreementReady = "agreement_ready"
)
