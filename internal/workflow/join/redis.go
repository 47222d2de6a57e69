// internal/workflow/join/redis.go
package join

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"loan-workers/internal/models"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "eligibility:join:"

// RedisBarrier stores pending sub-results in a Redis hash per record,
// so the two sub-checks may report from different worker processes.
// The hash carries a TTL as a backstop against orphaned joins.
type RedisBarrier struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisBarrier(client *redis.Client, ttl time.Duration) *RedisBarrier {
	return &RedisBarrier{client: client, ttl: ttl}
}

func (b *RedisBarrier) Record(ctx context.Context, recordID string, sub models.SubCheckResult) (*models.EligibilityResults, bool, error) {
	key := keyPrefix + recordID

	data, err := json.Marshal(sub)
	if err != nil {
		return nil, false, fmt.Errorf("marshal sub-check result: %w", err)
	}

	pipe := b.client.TxPipeline()
	pipe.HSet(ctx, key, sub.Check, data)
	pipe.Expire(ctx, key, b.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, false, fmt.Errorf("record sub-check %s for %s: %w", sub.Check, recordID, err)
	}

	checks, err := b.load(ctx, key)
	if err != nil {
		return nil, false, err
	}

	credit, hasCredit := checks[models.CheckCredit]
	debtRatio, hasDebtRatio := checks[models.CheckDebtRatio]
	if !hasCredit || !hasDebtRatio {
		return nil, false, nil
	}

	// Both present. Concurrent reporters may both observe a complete
	// pair; the orchestrator's CAS on the record makes the duplicate
	// decision a dropped no-op.
	b.client.Del(ctx, key)
	return reconcile(credit, debtRatio), true, nil
}

func (b *RedisBarrier) Expire(ctx context.Context, recordID string) (*models.EligibilityResults, bool, error) {
	key := keyPrefix + recordID

	checks, err := b.load(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if len(checks) == 0 {
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

	b.client.Del(ctx, key)
	return reconcile(credit, debtRatio), true, nil
}

func (b *RedisBarrier) load(ctx context.Context, key string) (map[string]models.SubCheckResult, error) {
	raw, err := b.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("load join state %s: %w", key, err)
	}

	checks := make(map[string]models.SubCheckResult, len(raw))
	for check, data := range raw {
		var sub models.SubCheckResult
		if err := json.Unmarshal([]byte(data), &sub); err != nil {
			return nil, fmt.Errorf("unmarshal join state %s/%s: %w", key, check, err)
		}
		checks[check] = sub
	}
	return checks, nil
}
