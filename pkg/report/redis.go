package report

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/RNFS/fetchpipe/pkg/client"
	"github.com/RNFS/fetchpipe/pkg/logging"
)

// lastErrorTTL bounds how long per-item failure records are kept.
const lastErrorTTL = 24 * time.Hour

// RedisSink records outcome counters and last-error details in Redis so
// runs can be inspected across processes.
type RedisSink struct {
	redis  *redis.Client
	prefix string
	logger zerolog.Logger
}

// NewRedisSink creates a sink writing under the given key prefix
// ("fetchpipe" when empty).
func NewRedisSink(redisClient *redis.Client, prefix string) (*RedisSink, error) {
	if redisClient == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if prefix == "" {
		prefix = "fetchpipe"
	}
	return &RedisSink{
		redis:  redisClient,
		prefix: prefix,
		logger: logging.NewLogger("redis-sink"),
	}, nil
}

func (s *RedisSink) outcomeKey(outcome client.Outcome) string {
	return fmt.Sprintf("%s:outcomes:%s", s.prefix, outcome)
}

// Report writes the outcome counter and, for failed items, the last error
// in one Redis pipeline.
func (s *RedisSink) Report(ctx context.Context, result client.Result) error {
	pipe := s.redis.Pipeline()
	pipe.Incr(ctx, s.outcomeKey(result.Outcome))

	if result.Err != nil {
		errKey := fmt.Sprintf("%s:last_error:%s", s.prefix, result.Item.ID)
		pipe.Set(ctx, errKey, result.Err.Error(), lastErrorTTL)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store outcome in redis: %w", err)
	}

	s.logger.Debug().
		Str("item_id", result.Item.ID).
		Str("outcome", string(result.Outcome)).
		Msg("Outcome stored")
	return nil
}

// Counts reads the per-outcome counters back.
func (s *RedisSink) Counts(ctx context.Context) (map[client.Outcome]int64, error) {
	counts := make(map[client.Outcome]int64)
	for _, outcome := range []client.Outcome{client.OutcomeSuccess, client.OutcomeTimeout, client.OutcomeFailure} {
		n, err := s.redis.Get(ctx, s.outcomeKey(outcome)).Int64()
		if err != nil && err != redis.Nil {
			return nil, fmt.Errorf("get %s count: %w", outcome, err)
		}
		counts[outcome] = n
	}
	return counts, nil
}

// Reset removes the per-outcome counters.
func (s *RedisSink) Reset(ctx context.Context) error {
	for _, outcome := range []client.Outcome{client.OutcomeSuccess, client.OutcomeTimeout, client.OutcomeFailure} {
		if err := s.redis.Del(ctx, s.outcomeKey(outcome)).Err(); err != nil {
			return fmt.Errorf("reset %s count: %w", outcome, err)
		}
	}
	return nil
}
