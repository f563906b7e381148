package pipeline

import (
	"context"
	"errors"
	"time"

	"editserver/internal/providers/flux"
)

// RetryPolicy bounds how often a transient stage failure is retried and how
// long the backoff between attempts grows.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.BaseDelay << attempt
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// retryable reports whether an error is worth another attempt. Cancellation
// and permanent upstream rejections are final; everything else on an I/O
// stage is treated as transient.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *flux.ServiceError
	if errors.As(err, &se) {
		return se.Temporary
	}
	return true
}

func (p *Processor) withRetry(ctx context.Context, stage string, policy RetryPolicy, fn func() error) error {
	var err error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !retryable(err) || attempt == policy.MaxAttempts-1 {
			return err
		}
		delay := policy.delay(attempt)
		p.log.Warn().
			Err(err).
			Str("stage", stage).
			Int("attempt", attempt+1).
			Dur("retry_in", delay).
			Msg("stage attempt failed, retrying")
		if serr := p.sleep(ctx, delay); serr != nil {
			return serr
		}
	}
	return err
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
