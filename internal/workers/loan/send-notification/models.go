// internal/workers/loan/send-notification/models.go
package sendnotification

type Input struct {
	NotificationID   string                 `json:"notificationId"`
	RecordID         string                 `json:"recordId"`
	NotificationType string                 `json:"notificationType"`
	Channel          string                 `json:"channel,omitempty"`
	Message          string                 `json:"message,omitempty"`
	Priority         string                 `json:"priority,omitempty"`
	Payload          map[string]interface{} `json:"payload,omitempty"`
}

type Output struct {
	NotificationID string `json:"notificationId"`
	Status         string `json:"status"` // "sent", "failed", "disabled"
	SentAt         string `json:"sentAt"` // ISO 8601
}

// Notification types
const (
	TypeMissingFields  = "missing_fields"
	TypeStatusUpdate   = "status_update"
	TypeAgreementReady = "agreement_ready"
)

// Statuses
const (
	StatusSent     = "sent"
	StatusFailed   = "failed"
	StatusDisabled = "disabled"
)
