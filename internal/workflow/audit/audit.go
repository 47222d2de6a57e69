// internal/workflow/audit/audit.go
package audit

import (
	"context"

	"loan-workers/internal/common/logger"
	"loan-workers/internal/models"
)

// Sink records status transitions for external log storage. The core
// emits exactly one event per applied transition; sink failures are
// logged but never roll a transition back.
type Sink interface {
	Write(ctx context.Context, event models.StatusTransition) error
}

// LogSink writes transitions to the structured log.
type LogSink struct {
	logger logger.Logger
}

func NewLogSink(log logger.Logger) *LogSink {
	return &LogSink{logger: log.WithFields(map[string]interface{}{"component": "audit"})}
}

func (s *LogSink) Write(_ context.Context, event models.StatusTransition) error {
	s.logger.Info("status transition", map[string]interface{}{
		"recordId":   event.RecordID,
		"timestamp":  event.Timestamp,
		"fromStatus": event.FromStatus,
		"toStatus":   event.ToStatus,
		"stage":      event.Stage,
		"detail":     event.Detail,
	})
	return nil
}

// MultiSink fans out to several sinks. The first error is returned
// after every sink has been attempted.
type MultiSink struct {
	sinks []Sink
}

func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (s *MultiSink) Write(ctx context.Context, event models.StatusTransition) error {
	var firstErr error
	for _, sink := range s.sinks {
		if err := sink.Write(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// MemorySink collects events for tests and for the in-process audit
// trail assertions.
type MemorySink struct {
	events []models.StatusTransition
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Write(_ context.Context, event models.StatusTransition) error {
	s.events = append(s.events, event)
	return nil
}

func (s *MemorySink) Events() []models.StatusTransition {
	return s.events
}

// EventsFor filters the trail down to one record.
func (s *MemorySink) EventsFor(recordID string) []models.StatusTransition {
	var out []models.StatusTransition
	for _, e := range s.events {
		if e.RecordID == recordID {
			out = append(out, e)
		}
	}
	return out
}
