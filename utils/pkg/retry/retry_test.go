package retry

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fastConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  5 * time.Millisecond,
	}
}

func TestVest_Retry_Do_SucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Do(t.Context(), fastConfig(), func() error {
		calls++
		if calls < 3 {
			return &StatusError{Code: http.StatusServiceUnavailable}
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestVest_Retry_Do_StopsOnNonRetryable(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Do(t.Context(), fastConfig(), func() error {
		calls++
		return &StatusError{Code: http.StatusBadRequest}
	})
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusBadRequest, statusErr.Code)
	require.Equal(t, 1, calls, "a client error must not be retried")
}

func TestVest_Retry_Do_ExhaustsAttempts(t *testing.T) {
	t.Parallel()

	calls := 0
	boom := errors.New("connection refused")
	err := Do(t.Context(), fastConfig(), func() error {
		calls++
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.ErrorContains(t, err, "failed after 3 attempts")
	require.Equal(t, 3, calls)
}

func TestVest_Retry_Do_HonorsContextCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	calls := 0
	err := Do(ctx, Config{MaxAttempts: 5, BaseBackoff: time.Minute, MaxBackoff: time.Minute}, func() error {
		calls++
		cancel()
		return errors.New("transient")
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls, "cancellation must preempt the backoff sleep")
}

func TestVest_Retry_IsRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"context canceled", context.Canceled, false},
		{"deadline exceeded", context.DeadlineExceeded, false},
		{"status 429", &StatusError{Code: http.StatusTooManyRequests}, true},
		{"status 500", &StatusError{Code: http.StatusInternalServerError}, true},
		{"status 502", &StatusError{Code: http.StatusBadGateway}, true},
		{"status 400", &StatusError{Code: http.StatusBadRequest}, false},
		{"status 404", &StatusError{Code: http.StatusNotFound}, false},
		{"unclassified", errors.New("eof"), true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, IsRetryable(tc.err))
		})
	}
}

func TestVest_Retry_Backoff_CapsAndJitters(t *testing.T) {
	t.Parallel()

	base := 100 * time.Millisecond
	max := 300 * time.Millisecond
	for attempt := 1; attempt <= 6; attempt++ {
		d := backoff(base, max, attempt)
		require.GreaterOrEqual(t, d, time.Duration(float64(base)*0.5))
		require.Less(t, d, max)
	}
}
