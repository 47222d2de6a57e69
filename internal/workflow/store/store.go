// internal/workflow/store/store.go
package store

import (
	"context"
	"errors"

	"loan-workers/internal/models"
)

var (
	// ErrNotFound means no record exists for the id.
	ErrNotFound = errors.New("RECORD_NOT_FOUND")
	// ErrDuplicate means a record with the id already exists.
	ErrDuplicate = errors.New("DUPLICATE_RECORD")
	// ErrStatusConflict means the record's current status did not match
	// the expected source status of a transition. Redelivered events
	// surface here and are dropped by the orchestrator.
	ErrStatusConflict = errors.New("STATUS_CONFLICT")
)

// RecordStore is the only shared mutable resource in the pipeline. All
// mutation goes through Apply, which performs the read-check-write of
// a transition as one atomic unit per record.
type RecordStore interface {
	Create(ctx context.Context, app *models.LoanApplication) error
	Get(ctx context.Context, id string) (*models.LoanApplication, error)

	// Apply loads the record, verifies its status equals expected,
	// runs mutate on it and persists the result. Returns
	// ErrStatusConflict without mutating when the check fails.
	Apply(ctx context.Context, id string, expected models.LoanStatus, mutate func(*models.LoanApplication) error) (*models.LoanApplication, error)
}
