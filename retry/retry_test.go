package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/whonion/scavenger-miner/retry"
)

func TestBoundedGivesUp(t *testing.T) {
	boom := errors.New("boom")
	calls := 0

	err := retry.Bounded(3, time.Millisecond).Do(context.Background(), "op", func(context.Context) error {
		calls++
		return boom
	})
	require.ErrorIs(t, err, retry.ErrAttemptsExhausted)
	require.ErrorIs(t, err, boom)
	require.Equal(t, 3, calls)
}

func TestBoundedStopsOnSuccess(t *testing.T) {
	calls := 0
	err := retry.Bounded(5, time.Millisecond).Do(context.Background(), "op", func(context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}

func TestUnboundedHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	err := retry.Unbounded(time.Millisecond).Do(ctx, "op", func(context.Context) error {
		calls++
		if calls == 3 {
			cancel()
		}
		return errors.New("still failing")
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 3, calls)
}
