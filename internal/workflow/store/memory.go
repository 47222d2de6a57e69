// internal/workflow/store/memory.go
package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"loan-workers/internal/models"
)

// MemoryStore keeps records in process memory with a per-store mutex.
// Used by tests and single-node runs; the Postgres store is the
// production implementation.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*models.LoanApplication
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*models.LoanApplication)}
}

func (s *MemoryStore) Create(_ context.Context, app *models.LoanApplication) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[app.ID]; exists {
		return ErrDuplicate
	}
	s.records[app.ID] = clone(app)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*models.LoanApplication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	app, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(app), nil
}

func (s *MemoryStore) Apply(_ context.Context, id string, expected models.LoanStatus, mutate func(*models.LoanApplication) error) (*models.LoanApplication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	app, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	if app.Status != expected {
		return nil, ErrStatusConflict
	}

	updated := clone(app)
	if err := mutate(updated); err != nil {
		return nil, err
	}
	updated.UpdatedAt = time.Now().UTC()

	s.records[id] = updated
	return clone(updated), nil
}

// clone round-trips through JSON so callers never share pointers with
// the stored record.
func clone(app *models.LoanApplication) *models.LoanApplication {
	data, _ := json.Marshal(app)
	var out models.LoanApplication
	_ = json.Unmarshal(data, &out)
	return &out
}
