package ratelimit

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ring2236/ESA-DGR/internal/llm/configuration"
	llmerrors "github.com/ring2236/ESA-DGR/internal/llm/errors"
	"github.com/ring2236/ESA-DGR/internal/llm/transport"
)

func TestNew_Validation(t *testing.T) {
	_, err := New(configuration.RateLimitConfig{TokensPerSecond: 0, BurstSize: 1})
	assert.ErrorIs(t, err, errTokensPerSecondInvalid)

	_, err = New(configuration.RateLimitConfig{TokensPerSecond: 1, BurstSize: 0})
	assert.ErrorIs(t, err, errBurstSizeInvalid)

	_, err = NewRateLimitMiddleware(configuration.DefaultConfig().RateLimit)
	require.NoError(t, err)
}

func TestMiddleware_BurstPassesThrough(t *testing.T) {
	mw, err := NewRateLimitMiddleware(configuration.RateLimitConfig{TokensPerSecond: 1, BurstSize: 3})
	require.NoError(t, err)

	var calls atomic.Int32
	h := mw(transport.HandlerFunc(func(context.Context, *transport.Request) (*transport.Response, error) {
		calls.Add(1)
		return &transport.Response{}, nil
	}))

	for range 3 {
		_, err := h.Handle(context.Background(), &transport.Request{ModelID: "qwen"})
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), calls.Load())
}

func TestWait_PerModelBuckets(t *testing.T) {
	l, err := New(configuration.RateLimitConfig{TokensPerSecond: 0.01, BurstSize: 1})
	require.NoError(t, err)

	require.NoError(t, l.Wait(context.Background(), "a"))
	require.NoError(t, l.Wait(context.Background(), "b"), "each model has its own bucket")

	// Second token for "a" is 100s away; a short deadline cannot be satisfied.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err = l.Wait(ctx, "a")
	require.Error(t, err)

	var rl *llmerrors.RateLimitError
	require.ErrorAs(t, err, &rl)
	assert.True(t, rl.LocalLimit)
	assert.Equal(t, "a", rl.Provider)
}

func TestWait_Cancelled(t *testing.T) {
	l, err := New(configuration.RateLimitConfig{TokensPerSecond: 0.01, BurstSize: 1})
	require.NoError(t, err)
	require.NoError(t, l.Wait(context.Background(), "a"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, l.Wait(ctx, "a"), context.Canceled)
}
