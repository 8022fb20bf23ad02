package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimpleRateLimiter_ZeroDelay(t *testing.T) {
	r := NewSimpleRateLimiter(0, 0)
	for i := 0; i < 3; i++ {
		require.NoError(t, r.Wait(context.Background()))
	}
}

func TestSimpleRateLimiter_SpacesActions(t *testing.T) {
	r := NewSimpleRateLimiter(30*time.Millisecond, 30*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, r.Wait(ctx))
	start := time.Now()
	require.NoError(t, r.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
}

func TestSimpleRateLimiter_Cancelled(t *testing.T) {
	r := NewSimpleRateLimiter(time.Hour, time.Hour)
	require.NoError(t, r.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, r.Wait(ctx), context.Canceled)
}

func TestSimpleRateLimiter_JitterWithinBounds(t *testing.T) {
	r := NewSimpleRateLimiter(10*time.Millisecond, 20*time.Millisecond)
	for i := 0; i < 50; i++ {
		d := r.calculateDelay()
		assert.GreaterOrEqual(t, d, 10*time.Millisecond)
		assert.Less(t, d, 20*time.Millisecond)
	}
}

func TestAdaptiveRateLimiter(t *testing.T) {
	t.Run("backs off after repeated errors", func(t *testing.T) {
		a := NewAdaptiveRateLimiter(2*time.Second, 4*time.Second)
		a.RecordError()
		a.RecordError()
		min, max := a.Delays()
		assert.Equal(t, 2*time.Second, min)
		assert.Equal(t, 4*time.Second, max)

		a.RecordError()
		min, max = a.Delays()
		assert.Equal(t, 3*time.Second, min)
		assert.Equal(t, 6*time.Second, max)
	})

	t.Run("caps the backoff", func(t *testing.T) {
		a := NewAdaptiveRateLimiter(50*time.Second, 100*time.Second)
		for i := 0; i < 9; i++ {
			a.RecordError()
		}
		min, max := a.Delays()
		assert.Equal(t, 60*time.Second, min)
		assert.Equal(t, 120*time.Second, max)
	})

	t.Run("recovers but not below the base", func(t *testing.T) {
		a := NewAdaptiveRateLimiter(2*time.Second, 4*time.Second)
		for i := 0; i < 3; i++ {
			a.RecordError()
		}
		for i := 0; i < 6*10; i++ {
			a.RecordSuccess()
		}
		min, _ := a.Delays()
		assert.Equal(t, 2*time.Second, min)
	})
}
