package flood_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/rueidis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/groupwarden/warden/internal/database/types"
	"github.com/groupwarden/warden/internal/database/types/enum"
	"github.com/groupwarden/warden/internal/moderation/flood"
)

func setupTest(t *testing.T) (*flood.Detector, *miniredis.Miniredis) {
	t.Helper()

	// Start miniredis server
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	// Create Redis client
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{mr.Addr()},
		DisableCache: true,
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	return flood.NewDetector(client, zap.NewNop()), mr
}

func floodPolicy(limit, windowSeconds int) *types.GroupPolicy {
	return &types.GroupPolicy{
		GroupID:            10,
		AntifloodActive:    true,
		FloodLimit:         limit,
		FloodWindowSeconds: windowSeconds,
		FloodAction:        enum.ActionMute,
	}
}

func TestFloodTriggersInsideWindow(t *testing.T) {
	t.Parallel()

	detector, _ := setupTest(t)
	policy := floodPolicy(10, 5)

	// 10 messages inside the window trigger exactly once, on the 10th
	for i := 1; i <= 9; i++ {
		triggered, err := detector.Observe(context.Background(), policy, 4)
		require.NoError(t, err)
		assert.False(t, triggered, "message %d must not trigger", i)
	}

	triggered, err := detector.Observe(context.Background(), policy, 4)
	require.NoError(t, err)
	assert.True(t, triggered)

	// The window reset: the next message starts a fresh burst
	triggered, err = detector.Observe(context.Background(), policy, 4)
	require.NoError(t, err)
	assert.False(t, triggered)
}

func TestFloodSpreadAcrossWindowsNeverTriggers(t *testing.T) {
	t.Parallel()

	detector, mr := setupTest(t)
	policy := floodPolicy(10, 5)

	// The same 10 messages spread across 20 seconds: the counter expires
	// between bursts of 5, so the limit is never reached
	for burst := 0; burst < 2; burst++ {
		for i := 0; i < 5; i++ {
			triggered, err := detector.Observe(context.Background(), policy, 4)
			require.NoError(t, err)
			assert.False(t, triggered)
		}

		mr.FastForward(10 * time.Second)
	}
}

func TestFloodIndependentKeys(t *testing.T) {
	t.Parallel()

	detector, _ := setupTest(t)
	policy := floodPolicy(3, 5)

	// Two users in the same group count independently
	for i := 0; i < 2; i++ {
		_, err := detector.Observe(context.Background(), policy, 4)
		require.NoError(t, err)
		_, err = detector.Observe(context.Background(), policy, 5)
		require.NoError(t, err)
	}

	triggered, err := detector.Observe(context.Background(), policy, 4)
	require.NoError(t, err)
	assert.True(t, triggered)

	triggered, err = detector.Observe(context.Background(), policy, 5)
	require.NoError(t, err)
	assert.True(t, triggered)
}

func TestFloodDisabled(t *testing.T) {
	t.Parallel()

	detector, _ := setupTest(t)

	policy := floodPolicy(1, 5)
	policy.AntifloodActive = false

	for i := 0; i < 5; i++ {
		triggered, err := detector.Observe(context.Background(), policy, 4)
		require.NoError(t, err)
		assert.False(t, triggered)
	}
}

func TestFloodConcurrentSingleFire(t *testing.T) {
	t.Parallel()

	detector, _ := setupTest(t)
	policy := floodPolicy(10, 60)

	// Exactly one of 10 concurrent messages observes the limit
	var fired atomic.Int64

	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			triggered, err := detector.Observe(context.Background(), policy, 4)
			assert.NoError(t, err)

			if triggered {
				fired.Add(1)
			}
		}()
	}

	wg.Wait()
	assert.Equal(t, int64(1), fired.Load())
}

func TestFloodLimitLoweredMidWindowStillFires(t *testing.T) {
	t.Parallel()

	detector, _ := setupTest(t)
	policy := floodPolicy(10, 60)

	// 4 messages under the original limit of 10
	for i := 0; i < 4; i++ {
		triggered, err := detector.Observe(context.Background(), policy, 4)
		require.NoError(t, err)
		assert.False(t, triggered)
	}

	// The limit drops below the running count; the next message fires
	policy.FloodLimit = 3

	triggered, err := detector.Observe(context.Background(), policy, 4)
	require.NoError(t, err)
	assert.True(t, triggered)

	// The counter was reset by the firing message
	triggered, err = detector.Observe(context.Background(), policy, 4)
	require.NoError(t, err)
	assert.False(t, triggered)
}

func TestFloodCounterAlwaysCarriesWindowTTL(t *testing.T) {
	t.Parallel()

	detector, mr := setupTest(t)
	policy := floodPolicy(10, 5)

	// Every message inside the burst leaves the counter bounded by the
	// window expiry
	for i := 0; i < 3; i++ {
		_, err := detector.Observe(context.Background(), policy, 4)
		require.NoError(t, err)

		ttl := mr.TTL("flood:10:4")
		assert.Greater(t, ttl, time.Duration(0), "message %d left the counter without a TTL", i+1)
		assert.LessOrEqual(t, ttl, 5*time.Second)
	}
}

func TestFloodReset(t *testing.T) {
	t.Parallel()

	detector, _ := setupTest(t)
	policy := floodPolicy(3, 60)

	for i := 0; i < 2; i++ {
		_, err := detector.Observe(context.Background(), policy, 4)
		require.NoError(t, err)
	}

	require.NoError(t, detector.Reset(context.Background(), 10, 4))

	// After a reset the count starts over
	triggered, err := detector.Observe(context.Background(), policy, 4)
	require.NoError(t, err)
	assert.False(t, triggered)
}
