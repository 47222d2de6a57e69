// internal/workflow/store/postgres.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"loan-workers/internal/models"

	_ "github.com/lib/pq"
)

// PostgresStore persists records as jsonb rows. The status column is
// duplicated out of the record body so transitions can be applied with
// a compare-and-swap on the expected source status.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS loan_applications (
    id         TEXT PRIMARY KEY,
    status     TEXT NOT NULL,
    record     JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// EnsureSchema creates the backing table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, createTableSQL)
	if err != nil {
		return fmt.Errorf("ensure loan_applications schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, app *models.LoanApplication) error {
	body, err := json.Marshal(app)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO loan_applications (id, status, record, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO NOTHING`,
		app.ID, string(app.Status), body, app.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert record %s: %w", app.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrDuplicate
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*models.LoanApplication, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT record FROM loan_applications WHERE id = $1`, id,
	).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select record %s: %w", id, err)
	}

	var app models.LoanApplication
	if err := json.Unmarshal(body, &app); err != nil {
		return nil, fmt.Errorf("unmarshal record %s: %w", id, err)
	}
	return &app, nil
}

func (s *PostgresStore) Apply(ctx context.Context, id string, expected models.LoanStatus, mutate func(*models.LoanApplication) error) (*models.LoanApplication, error) {
	app, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if app.Status != expected {
		return nil, ErrStatusConflict
	}

	if err := mutate(app); err != nil {
		return nil, err
	}
	app.UpdatedAt = time.Now().UTC()

	body, err := json.Marshal(app)
	if err != nil {
		return nil, fmt.Errorf("marshal record %s: %w", id, err)
	}

	// The WHERE status = expected guard makes the read-check-write
	// atomic: a concurrent transition turns this into zero rows.
	res, err := s.db.ExecContext(ctx,
		`UPDATE loan_applications
		 SET status = $1, record = $2, updated_at = $3
		 WHERE id = $4 AND status = $5`,
		string(app.Status), body, app.UpdatedAt, id, string(expected),
	)
	if err != nil {
		return nil, fmt.Errorf("update record %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrStatusConflict
	}
	return app, nil
}
