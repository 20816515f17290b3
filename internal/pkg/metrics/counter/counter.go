package counter

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	usageKeyPrefix = "usage:features:"
	// Daily hashes are kept long enough for monthly reporting.
	usageRetention = 45 * 24 * time.Hour
)

// Recorder keeps per-day, per-feature usage totals in Redis hashes. These
// are reporting aggregates only; quota enforcement never reads them.
type Recorder struct {
	client *redis.Client
}

func NewRecorder(c *redis.Client) *Recorder {
	return &Recorder{client: c}
}

func usageKey(day string) string {
	return usageKeyPrefix + day
}

// RecordUsage adds cost to the feature's total for day (YYYY-MM-DD).
func (r *Recorder) RecordUsage(ctx context.Context, feature, day string, cost int64) error {
	key := usageKey(day)
	pipe := r.client.TxPipeline()
	pipe.HIncrBy(ctx, key, feature, cost)
	pipe.Expire(ctx, key, usageRetention)
	_, err := pipe.Exec(ctx)
	return err
}

// DailyUsage returns feature totals for day.
func (r *Recorder) DailyUsage(ctx context.Context, day string) (map[string]int64, error) {
	data, err := r.client.HGetAll(ctx, usageKey(day)).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(data))
	for feature, raw := range data {
		v, perr := strconv.ParseInt(raw, 10, 64)
		if perr != nil {
			return nil, fmt.Errorf("usage %s/%s: %w", day, feature, perr)
		}
		out[feature] = v
	}
	return out, nil
}
