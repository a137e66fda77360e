package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"zkinvoice/config"
	"zkinvoice/pkg/apperror"
)

// RetryPolicy drives confirmation polling: a fixed interval with a bounded
// attempt count. Transient errors are swallowed and retried inside the
// window; terminal errors abort immediately; exhausting the window raises a
// timeout distinct from rejection.
type RetryPolicy struct {
	Interval    time.Duration
	MaxAttempts int
}

// PolicyFromConfig builds the shared polling policy.
func PolicyFromConfig(cfg config.PollingConfig) RetryPolicy {
	return RetryPolicy{Interval: cfg.Interval, MaxAttempts: cfg.MaxAttempts}
}

// PollFunc performs one polling attempt. done=true ends the poll
// successfully. A returned error aborts the poll when it is a terminal
// AppError; anything else is treated as transient and retried.
type PollFunc func(ctx context.Context) (done bool, err error)

// Poll runs fn up to MaxAttempts times. The cancellation context is checked
// before every attempt and during every inter-attempt wait; after
// cancellation no further calls are made.
func (p RetryPolicy) Poll(ctx context.Context, log zerolog.Logger, fn PollFunc) error {
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		done, err := fn(ctx)
		if err != nil {
			if isTerminal(err) {
				return err
			}
			log.Debug().Err(err).Int("attempt", attempt).Msg("transient poll error, retrying")
		} else if done {
			return nil
		}

		if attempt == p.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Interval):
		}
	}
	return apperror.ErrConfirmationTimeout(p.MaxAttempts)
}

// isTerminal reports whether err must abort the poll. Only classified,
// non-retryable errors do; raw network failures keep the poll alive.
func isTerminal(err error) bool {
	var ae *apperror.AppError
	if errors.As(err, &ae) {
		return !ae.Retryable
	}
	return false
}
