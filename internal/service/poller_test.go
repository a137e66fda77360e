package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zkinvoice/config"
	"zkinvoice/pkg/apperror"
)

func TestPoll_SucceedsMidWindow(t *testing.T) {
	policy := RetryPolicy{Interval: 0, MaxAttempts: 10}
	calls := 0

	err := policy.Poll(context.Background(), zerolog.Nop(), func(ctx context.Context) (bool, error) {
		calls++
		return calls == 3, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestPoll_ExhaustionIsTimeoutNotRejection(t *testing.T) {
	policy := RetryPolicy{Interval: 0, MaxAttempts: 120}
	calls := 0

	err := policy.Poll(context.Background(), zerolog.Nop(), func(ctx context.Context) (bool, error) {
		calls++
		return false, nil
	})

	require.Error(t, err)
	assert.Equal(t, 120, calls, "the window is exactly MaxAttempts wide")
	assert.Equal(t, apperror.CategoryTimeout, apperror.CategoryOf(err))
	assert.True(t, apperror.IsRetryable(err), "a timeout invites a user retry")
}

func TestPoll_TransientErrorsStayInsideTheWindow(t *testing.T) {
	policy := RetryPolicy{Interval: 0, MaxAttempts: 5}
	calls := 0

	err := policy.Poll(context.Background(), zerolog.Nop(), func(ctx context.Context) (bool, error) {
		calls++
		if calls < 3 {
			return false, apperror.ErrTransient(errors.New("connection reset"))
		}
		return true, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestPoll_RawErrorsAreTreatedAsTransient(t *testing.T) {
	policy := RetryPolicy{Interval: 0, MaxAttempts: 3}
	calls := 0

	err := policy.Poll(context.Background(), zerolog.Nop(), func(ctx context.Context) (bool, error) {
		calls++
		return false, errors.New("raw network failure")
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, apperror.CategoryTimeout, apperror.CategoryOf(err))
}

func TestPoll_TerminalErrorAbortsImmediately(t *testing.T) {
	policy := RetryPolicy{Interval: 0, MaxAttempts: 100}
	calls := 0
	terminal := apperror.ErrTransactionRejected("tx-9")

	err := policy.Poll(context.Background(), zerolog.Nop(), func(ctx context.Context) (bool, error) {
		calls++
		return false, terminal
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, apperror.CategoryRejected, apperror.CategoryOf(err))
}

func TestPoll_CancellationStopsFurtherAttempts(t *testing.T) {
	policy := RetryPolicy{Interval: 50 * time.Millisecond, MaxAttempts: 100}
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	err := policy.Poll(ctx, zerolog.Nop(), func(ctx context.Context) (bool, error) {
		calls++
		cancel()
		return false, nil
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls, "no attempt runs after cancellation")
}

func TestPoll_CancelledBeforeFirstAttempt(t *testing.T) {
	policy := RetryPolicy{Interval: time.Millisecond, MaxAttempts: 10}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := policy.Poll(ctx, zerolog.Nop(), func(ctx context.Context) (bool, error) {
		t.Fatal("poll function must not run under a cancelled context")
		return false, nil
	})

	require.ErrorIs(t, err, context.Canceled)
}

func TestPolicyFromConfig(t *testing.T) {
	policy := PolicyFromConfig(config.PollingConfig{Interval: 2 * time.Second, MaxAttempts: 60})
	assert.Equal(t, 2*time.Second, policy.Interval)
	assert.Equal(t, 60, policy.MaxAttempts)
}
