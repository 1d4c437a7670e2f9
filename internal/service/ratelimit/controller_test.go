package ratelimit

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"VolScreen/internal/domain/models"
)

// fakeTime is a manual clock whose sleeps advance it instead of blocking.
type fakeTime struct {
	now   time.Time
	slept []time.Duration
}

func newFakeTime() *fakeTime {
	return &fakeTime{now: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
}

func (f *fakeTime) Now() time.Time { return f.now }

func (f *fakeTime) Sleep(_ context.Context, d time.Duration) error {
	f.slept = append(f.slept, d)
	f.now = f.now.Add(d)
	return nil
}

func newTestController(ft *fakeTime, opts ...Option) *Controller {
	base := []Option{
		WithClock(ft.Now),
		WithSleeper(ft.Sleep),
		WithBudget("prov", 2, 1),
	}
	return New(append(base, opts...)...)
}

func TestAcquireConsumesBudgetThenWaits(t *testing.T) {
	ft := newFakeTime()
	c := newTestController(ft)
	ctx := context.Background()

	require.NoError(t, c.Acquire(ctx, "prov"))
	require.NoError(t, c.Acquire(ctx, "prov"))
	if len(ft.slept) != 0 {
		t.Fatalf("expected no waits while budget lasts, got %v", ft.slept)
	}

	// Third permit must wait for a refill (1 token/sec).
	require.NoError(t, c.Acquire(ctx, "prov"))
	require.NotEmpty(t, ft.slept)
	assert.InDelta(t, time.Second.Seconds(), ft.slept[0].Seconds(), 0.05)
}

func TestThrottleDrainsBudgetAndBacksOff(t *testing.T) {
	ft := newFakeTime()
	c := newTestController(ft)
	ctx := context.Background()

	require.NoError(t, c.Acquire(ctx, "prov"))
	c.OnResponse("prov", http.StatusTooManyRequests, 0)

	before := len(ft.slept)
	require.NoError(t, c.Acquire(ctx, "prov"))
	require.Greater(t, len(ft.slept), before, "throttled provider must wait")

	// First backoff is base 500ms with ±20% jitter.
	got := ft.slept[before]
	assert.GreaterOrEqual(t, got, 400*time.Millisecond)
	assert.LessOrEqual(t, got, 600*time.Millisecond)
}

func TestRetryAfterHeaderWins(t *testing.T) {
	ft := newFakeTime()
	c := newTestController(ft)
	ctx := context.Background()

	require.NoError(t, c.Acquire(ctx, "prov"))
	c.OnResponse("prov", http.StatusTooManyRequests, 5*time.Second)

	before := len(ft.slept)
	require.NoError(t, c.Acquire(ctx, "prov"))
	assert.GreaterOrEqual(t, ft.slept[before], 5*time.Second)
}

func TestMaxAttemptsSurfacesRateLimitError(t *testing.T) {
	ft := newFakeTime()
	c := newTestController(ft)
	ctx := context.Background()

	for i := 0; i < maxAttempts; i++ {
		c.OnResponse("prov", http.StatusTooManyRequests, 0)
	}

	err := c.Acquire(ctx, "prov")
	require.Error(t, err)
	assert.True(t, models.IsRateLimit(err), "expected RateLimitError, got %v", err)

	// A reset restores the attempt budget.
	c.Reset("prov")
	require.NoError(t, c.Acquire(ctx, "prov"))
}

func TestSuccessClearsAttemptStreak(t *testing.T) {
	ft := newFakeTime()
	c := newTestController(ft)

	for i := 0; i < maxAttempts-1; i++ {
		c.OnResponse("prov", http.StatusTooManyRequests, 0)
	}
	c.OnResponse("prov", http.StatusOK, 0)
	c.OnResponse("prov", http.StatusTooManyRequests, 0)

	// Streak restarted: still below the cap.
	err := c.Acquire(context.Background(), "prov")
	require.NoError(t, err)
}

func TestAcquireHonorsContext(t *testing.T) {
	c := New(WithBudget("prov", 0, 0.0001))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Acquire(ctx, "prov")
	require.ErrorIs(t, err, context.Canceled)
}

func TestBackoffCapped(t *testing.T) {
	ft := newFakeTime()
	c := newTestController(ft)

	d := c.backoff(20)
	assert.LessOrEqual(t, d, time.Duration(float64(maxBackoff)*(1+jitterFrac))+time.Millisecond)
}
