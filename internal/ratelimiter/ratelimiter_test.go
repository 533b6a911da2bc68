package ratelimiter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		rate      uint
		burst     uint
		unlimited bool
	}{
		{name: "standard rate", rate: 100, burst: 200},
		{name: "low rate", rate: 1, burst: 2},
		{name: "zero burst", rate: 5, burst: 0},
		{name: "unlimited", rate: 0, burst: 0, unlimited: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter := New(tt.rate, tt.burst)
			require.NotNil(t, limiter)
			assert.Equal(t, tt.unlimited, limiter.Unlimited())
			if !tt.unlimited {
				assert.True(t, limiter.Allow(), "a fresh bucket holds at least one token")
			}
		})
	}
}

func TestAllow(t *testing.T) {
	limiter := New(10, 10)

	for i := 0; i < 10; i++ {
		require.True(t, limiter.Allow(), "item %d is within the burst", i)
	}
	assert.False(t, limiter.Allow(), "bucket is empty after the burst")

	// 10 items/s refills one token every 100ms
	time.Sleep(110 * time.Millisecond)
	assert.True(t, limiter.Allow())
}

func TestPace_Waits(t *testing.T) {
	limiter := New(10, 1)
	ctx := context.Background()

	require.NoError(t, limiter.Pace(ctx))

	start := time.Now()
	require.NoError(t, limiter.Pace(ctx))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Less(t, elapsed, 250*time.Millisecond)
}

func TestPace_Unlimited(t *testing.T) {
	limiter := New(0, 0)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 10000; i++ {
		require.NoError(t, limiter.Pace(ctx))
	}
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestPace_ContextCancellation(t *testing.T) {
	limiter := New(1, 1)
	require.True(t, limiter.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := limiter.Pace(ctx)
	require.Error(t, err)

	// rate.Limiter fails fast when the deadline is shorter than the wait
	<-ctx.Done()
	assert.True(t, errors.Is(ctx.Err(), context.DeadlineExceeded))
}

func TestPace_AlreadyCancelled(t *testing.T) {
	limiter := New(100, 100)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, limiter.Pace(ctx), context.Canceled)
}

func TestSetLimit(t *testing.T) {
	limiter := New(1, 1)
	require.True(t, limiter.Allow())
	assert.False(t, limiter.Allow())

	limiter.SetLimit(0)
	assert.True(t, limiter.Unlimited())
	for i := 0; i < 100; i++ {
		require.True(t, limiter.Allow())
	}

	limiter.SetLimit(1000)
	assert.False(t, limiter.Unlimited())
}
