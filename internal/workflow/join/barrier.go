// internal/workflow/join/barrier.go
package join

import (
	"context"
	"sync"
	"time"

	"loan-workers/internal/models"
)

// TimeoutReason annotates a sub-check that was failed closed because
// its result never arrived within the configured deadline.
const TimeoutReason = "sub-check timed out"

// Barrier is the eligibility join point, keyed by record id. A
// decision is only released once both sub-checks have reported;
// partial results are withheld. Duplicate reports for the same check
// overwrite rather than double-fire.
type Barrier interface {
	// Record stores one sub-check result. done is true only when both
	// required checks are now present; results is nil until then.
	Record(ctx context.Context, recordID string, sub models.SubCheckResult) (results *models.EligibilityResults, done bool, err error)

	// Expire fails any still-missing sub-check closed and releases the
	// decision. done is false when nothing is pending for the record.
	Expire(ctx context.Context, recordID string) (results *models.EligibilityResults, done bool, err error)
}

// reconcile applies the AND rule over both sub-check reports.
func reconcile(credit, debtRatio models.SubCheckResult) *models.EligibilityResults {
	return &models.EligibilityResults{
		Credit:    credit,
		DebtRatio: debtRatio,
		Eligible:  credit.Passed && debtRatio.Passed,
	}
}

func failedClosed(check string) models.SubCheckResult {
	return models.SubCheckResult{
		Check:      check,
		Passed:     false,
		Reason:     TimeoutReason,
		ReportedAt: time.Now().UTC(),
	}
}

// MemoryBarrier keeps pending sub-results in process memory. Used by
// tests and single-node runs; the Redis barrier is the distributed
// implementation.
type MemoryBarrier struct {
	mu      sync.Mutex
	pending map[string]map[string]models.SubCheckResult
}

func NewMemoryBarrier() *MemoryBarrier {
	return &MemoryBarrier{pending: make(map[string]map[string]models.SubCheckResult)}
}

func (b *MemoryBarrier) Record(_ context.Context, recordID string, sub models.SubCheckResult) (*models.EligibilityResults, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	checks, ok := b.pending[recordID]
	if !ok {
		checks = make(map[string]models.SubCheckResult)
		b.pending[recordID] = checks
	}
	checks[sub.Check] = sub

	credit, hasCredit := checks[models.CheckCredit]
	debtRatio, hasDebtRatio := checks[models.CheckDebtRatio]
	if !hasCredit || !hasDebtRatio {
		return nil, false, nil
	}

	delete(b.pending, recordID)
	return reconcile(credit, debtRatio), true, nil
}

func (b *MemoryBarrier) Expire(_ context.Context, recordID string) (*models.EligibilityResults, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	checks, ok := b.pending[recordID]
	if !ok {
		return nil, false, nil
	}

	credit, hasCredit := checks[models.CheckCredit]
	if !hasCredit {
		credit = failedClosed(models.CheckCredit)
	}
	debtRatio, hasDebtRatio := checks[models.CheckDebtRatio]
	if !hasDebtRatio {
		debtRatio = failedClosed(models.CheckDebtRatio)
	}

	delete(b.pending, recordID)
	return reconcile(credit, debtRatio), true, nil
}
