package services

import (
	"context"
	"errors"
	"time"

	"github.com/lborres/bantay/core"
	"github.com/lborres/bantay/pkg/logging"
)

// Sweepable is implemented by rate-limit stores that reclaim buckets
// themselves rather than relying on key expiry.
type Sweepable interface {
	Sweep(ctx context.Context, now time.Time) (int, error)
}

type SweepResult struct {
	Sessions  int
	Tokens    int
	Resets    int
	RateLimit int
}

// Sweeper periodically deletes expired records. Expiry is always checked on
// resolve, so sweeping only reclaims space.
type Sweeper struct {
	storage  core.StorageAdapter
	limits   core.RateLimitStore
	interval time.Duration
	logger   logging.Logger
	now      func() time.Time
}

func NewSweeper(storage core.StorageAdapter, limits core.RateLimitStore, interval time.Duration, logger logging.Logger) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Sweeper{
		storage:  storage,
		limits:   limits,
		interval: interval,
		logger:   logger.With("component", "sweeper"),
		now:      time.Now,
	}
}

// SweepOnce runs one pass and returns what it removed. It keeps going after
// a failing step and reports all failures together.
func (s *Sweeper) SweepOnce(ctx context.Context) (SweepResult, error) {
	now := s.now()
	var (
		result SweepResult
		errs   []error
		err    error
	)

	if result.Sessions, err = s.storage.DeleteExpiredSessions(ctx, now); err != nil {
		errs = append(errs, err)
	}
	if result.Tokens, err = s.storage.DeleteExpiredTokens(ctx, now); err != nil {
		errs = append(errs, err)
	}
	if result.Resets, err = s.storage.DeleteExpiredResetArtifacts(ctx, now); err != nil {
		errs = append(errs, err)
	}
	if sw, ok := s.limits.(Sweepable); ok {
		if result.RateLimit, err = sw.Sweep(ctx, now); err != nil {
			errs = append(errs, err)
		}
	}

	return result, errors.Join(errs...)
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			result, err := s.SweepOnce(ctx)
			if err != nil {
				s.logger.Error(ctx, "sweep failed", "error", err)
			}
			if result != (SweepResult{}) {
				s.logger.Debug(ctx, "sweep finished",
					"sessions", result.Sessions,
					"tokens", result.Tokens,
					"resets", result.Resets,
					"rate_limit", result.RateLimit,
				)
			}
		}
	}
}
