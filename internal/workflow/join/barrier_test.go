// internal/workflow/join/barrier_test.go
package join

import (
	"context"
	"testing"
	"time"

	"loan-workers/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func creditResult(passed bool, reason string) models.SubCheckResult {
	return models.SubCheckResult{
		Check:      models.CheckCredit,
		Passed:     passed,
		Reason:     reason,
		ReportedAt: time.Now().UTC(),
	}
}

func debtRatioResult(passed bool, reason string) models.SubCheckResult {
	return models.SubCheckResult{
		Check:      models.CheckDebtRatio,
		Passed:     passed,
		Reason:     reason,
		ReportedAt: time.Now().UTC(),
	}
}

// barriers returns both implementations so every test runs against
// memory and Redis alike.
func barriers(t *testing.T) map[string]Barrier {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return map[string]Barrier{
		"memory": NewMemoryBarrier(),
		"redis":  NewRedisBarrier(client, time.Minute),
	}
}

func TestBarrier_WithholdsUntilBothPresent(t *testing.T) {
	for name, b := range barriers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			results, done, err := b.Record(ctx, "app-1", creditResult(true, ""))
			require.NoError(t, err)
			assert.False(t, done, "single sub-result must not release a decision")
			assert.Nil(t, results)

			results, done, err = b.Record(ctx, "app-1", debtRatioResult(true, ""))
			require.NoError(t, err)
			require.True(t, done)
			assert.True(t, results.Eligible)
		})
	}
}

func TestBarrier_OrderIndependence(t *testing.T) {
	for name, b := range barriers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			// Debt ratio first, credit second.
			_, done, err := b.Record(ctx, "app-2", debtRatioResult(false, "DTI exceeded"))
			require.NoError(t, err)
			assert.False(t, done)

			results, done, err := b.Record(ctx, "app-2", creditResult(true, ""))
			require.NoError(t, err)
			require.True(t, done)
			assert.False(t, results.Eligible)
			assert.Equal(t, []string{models.CheckDebtRatio}, results.FailedChecks())
			assert.Equal(t, "DTI exceeded", results.DebtRatio.Reason)
		})
	}
}

func TestBarrier_ANDReconciliation(t *testing.T) {
	tests := []struct {
		name         string
		credit       bool
		debtRatio    bool
		wantEligible bool
	}{
		{"both pass", true, true, true},
		{"credit fails", false, true, false},
		{"debt ratio fails", true, false, false},
		{"both fail", false, false, false},
	}

	for name, b := range barriers(t) {
		t.Run(name, func(t *testing.T) {
			for i, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					ctx := context.Background()
					id := "app-and-" + string(rune('a'+i))

					_, _, err := b.Record(ctx, id, creditResult(tt.credit, ""))
					require.NoError(t, err)
					results, done, err := b.Record(ctx, id, debtRatioResult(tt.debtRatio, ""))
					require.NoError(t, err)
					require.True(t, done)
					assert.Equal(t, tt.wantEligible, results.Eligible)
				})
			}
		})
	}
}

func TestBarrier_DuplicateReportOverwrites(t *testing.T) {
	for name, b := range barriers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, done, err := b.Record(ctx, "app-3", creditResult(false, "credit score below minimum"))
			require.NoError(t, err)
			assert.False(t, done)

			// Redelivered credit report must not release the join.
			_, done, err = b.Record(ctx, "app-3", creditResult(false, "credit score below minimum"))
			require.NoError(t, err)
			assert.False(t, done)

			results, done, err := b.Record(ctx, "app-3", debtRatioResult(true, ""))
			require.NoError(t, err)
			require.True(t, done)
			assert.False(t, results.Eligible)
		})
	}
}

func TestBarrier_ExpireFailsClosed(t *testing.T) {
	for name, b := range barriers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, done, err := b.Record(ctx, "app-4", creditResult(true, ""))
			require.NoError(t, err)
			require.False(t, done)

			results, done, err := b.Expire(ctx, "app-4")
			require.NoError(t, err)
			require.True(t, done)
			assert.False(t, results.Eligible)
			assert.True(t, results.Credit.Passed)
			assert.False(t, results.DebtRatio.Passed)
			assert.Equal(t, TimeoutReason, results.DebtRatio.Reason)
		})
	}
}

func TestBarrier_ExpireWithNothingPending(t *testing.T) {
	for name, b := range barriers(t) {
		t.Run(name, func(t *testing.T) {
			_, done, err := b.Expire(context.Background(), "never-seen")
			require.NoError(t, err)
			assert.False(t, done)
		})
	}
}

func TestBarrier_JoinStateClearedAfterDecision(t *testing.T) {
	for name, b := range barriers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, _, err := b.Record(ctx, "app-5", creditResult(true, ""))
			require.NoError(t, err)
			_, done, err := b.Record(ctx, "app-5", debtRatioResult(true, ""))
			require.NoError(t, err)
			require.True(t, done)

			// Decision released once; a later expiry finds nothing.
			_, done, err = b.Expire(ctx, "app-5")
			require.NoError(t, err)
			assert.False(t, done)
		})
	}
}
