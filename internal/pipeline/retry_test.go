package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryTransientThenSuccess(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond}

	calls := 0
	err := p.Do(context.Background(), "op", func() error {
		calls++
		if calls < 3 {
			return Transient(errors.New("blip"))
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryPermanentErrorNotRetried(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond}
	boom := errors.New("bad input")

	calls := 0
	err := p.Do(context.Background(), "op", func() error {
		calls++
		return boom
	})

	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestRetryExhaustionStripsTransientMarker(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 2, Backoff: time.Millisecond}
	root := errors.New("detector down")

	calls := 0
	err := p.Do(context.Background(), "op", func() error {
		calls++
		return Transient(root)
	})

	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.ErrorIs(t, err, root)
	// The exhausted error is permanent: a caller must not retry it again.
	assert.False(t, IsTransient(err))
}

func TestRetryContextCancelled(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, Backoff: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- p.Do(ctx, "op", func() error {
			calls++
			return Transient(errors.New("blip"))
		})
	}()

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	case <-time.After(5 * time.Second):
		t.Fatal("retry did not observe cancellation")
	}
}

func TestTransientNilIsNil(t *testing.T) {
	assert.NoError(t, Transient(nil))
	assert.False(t, IsTransient(nil))
	assert.True(t, IsTransient(Transient(errors.New("x"))))
}
