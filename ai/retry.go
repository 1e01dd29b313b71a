package ai

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// MaxAttempts bounds every AI call: the first try plus one retry.
const MaxAttempts = 2

// DefaultBackoff is the pause before the single retry.
const DefaultBackoff = 500 * time.Millisecond

// Retrying wraps a Model with one bounded retry for transient failures.
// Persistent outages surface after the second attempt instead of being masked.
type Retrying struct {
	model   Model
	backoff time.Duration
	logger  *zap.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

// WithRetry wraps m. A non-positive backoff uses DefaultBackoff.
func WithRetry(m Model, backoff time.Duration, logger *zap.Logger) *Retrying {
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retrying{model: m, backoff: backoff, logger: logger, sleep: sleepCtx}
}

// Generate calls the wrapped model, retrying once if the first error is
// transient. The caller's context bounds both attempts and the pause.
func (r *Retrying) Generate(ctx context.Context, req Request) (*Response, error) {
	var lastErr error
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		resp, err := r.model.Generate(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !IsTransient(err) || attempt == MaxAttempts {
			break
		}

		r.logger.Info("ai call failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", r.backoff),
			zap.Error(err))

		if err := r.sleep(ctx, r.backoff); err != nil {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
