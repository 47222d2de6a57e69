// internal/workflow/orchestrator/dispatcher.go
package orchestrator

import (
	"context"
	"sync"

	"loan-workers/internal/models"
)

// Stage queue names. Each matches the TaskType of the worker package
// consuming it.
const (
	StageIntake        = "intake"
	StageCompleteness  = "verify-completeness"
	StageCredit        = "check-credit"
	StageDebtRatio     = "check-debt-ratio"
	StageEligibility   = "eligibility"
	StageReimbursement = "prepare-agreement"
	StageAgreement     = "agreement"
	StageNotification  = "send-notification"
)

// StageMessage routes a record to a stage's queue. Attempt is set on
// completeness dispatches only: the worker echoes it back with its
// verdict so a redelivered outcome for an already-counted cycle can be
// told apart from the next cycle's.
type StageMessage struct {
	RecordID string                 `json:"recordId"`
	Stage    string                 `json:"stage"`
	Attempt  int                    `json:"attempt,omitempty"`
	Payload  map[string]interface{} `json:"payload,omitempty"`
}

// Dispatcher is the outbound side of the broker. Implementations must
// tolerate duplicate dispatches for the same record and stage; stage
// handlers are idempotent.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg StageMessage) error
	Notify(ctx context.Context, n models.Notification) error
}

// MemoryDispatcher collects messages for tests and single-process
// pipelines.
type MemoryDispatcher struct {
	mu            sync.Mutex
	messages      []StageMessage
	notifications []models.Notification
}

func NewMemoryDispatcher() *MemoryDispatcher {
	return &MemoryDispatcher{}
}

func (d *MemoryDispatcher) Dispatch(_ context.Context, msg StageMessage) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.messages = append(d.messages, msg)
	return nil
}

func (d *MemoryDispatcher) Notify(_ context.Context, n models.Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notifications = append(d.notifications, n)
	return nil
}

func (d *MemoryDispatcher) Messages() []StageMessage {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]StageMessage, len(d.messages))
	copy(out, d.messages)
	return out
}

func (d *MemoryDispatcher) Notifications() []models.Notification {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]models.Notification, len(d.notifications))
	copy(out, d.notifications)
	return out
}

// MessagesFor filters dispatched messages by stage.
func (d *MemoryDispatcher) MessagesFor(stage string) []StageMessage {
	var out []StageMessage
	for _, m := range d.Messages() {
		if m.Stage == stage {
			out = append(out, m)
		}
	}
	return out
}
