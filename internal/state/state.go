package state

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// Phase names reported by the pipelines.
const (
	PhaseIngest     = "ingest"
	PhaseSimilarity = "similarity"
	PhaseDone       = "done"
)

// RunTracker records where a long run currently is so it can be watched from
// outside the process. Recording failures are the caller's to log; they never
// stop a run.
type RunTracker interface {
	SetPhase(ctx context.Context, phase string) error
	AddProcessed(ctx context.Context, phase string, count int) error
	GetProcessed(ctx context.Context, phase string) (int, error)
}

type redisRunTracker struct {
	redisClient *redis.Client
	keyPrefix   string
}

func NewRedisRunTracker(redisClient *redis.Client) RunTracker {
	return &redisRunTracker{
		redisClient: redisClient,
		keyPrefix:   "matcher:progress:",
	}
}

func (t *redisRunTracker) SetPhase(ctx context.Context, phase string) error {
	err := t.redisClient.Set(ctx, t.keyPrefix+"phase", phase, 0).Err()
	if err != nil {
		return fmt.Errorf("failed to set run phase %s: %w", phase, err)
	}
	return nil
}

func (t *redisRunTracker) AddProcessed(ctx context.Context, phase string, count int) error {
	err := t.redisClient.IncrBy(ctx, t.keyPrefix+"processed:"+phase, int64(count)).Err()
	if err != nil {
		return fmt.Errorf("failed to add processed count for phase %s: %w", phase, err)
	}
	return nil
}

func (t *redisRunTracker) GetProcessed(ctx context.Context, phase string) (int, error) {
	val, err := t.redisClient.Get(ctx, t.keyPrefix+"processed:"+phase).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get processed count for phase %s: %w", phase, err)
	}

	count, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("failed to parse processed count for phase %s: %w", phase, err)
	}
	return count, nil
}

type noopRunTracker struct{}

// NewNoopRunTracker returns a tracker for runs without redis configured.
func NewNoopRunTracker() RunTracker {
	return noopRunTracker{}
}

func (noopRunTracker) SetPhase(context.Context, string) error { return nil }

func (noopRunTracker) AddProcessed(context.Context, string, int) error { return nil }
func (noopRunTracker) GetProcessed(context.Context, string) (int, error) {
	return 0, nil
}
