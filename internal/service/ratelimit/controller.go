package ratelimit

import (
	"context"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"VolScreen/internal/domain/models"
)

const (
	baseBackoff   = 500 * time.Millisecond
	backoffFactor = 2
	maxBackoff    = 30 * time.Second
	jitterFrac    = 0.20
	maxAttempts   = 5
)

// Budget is a per-provider token budget.
type Budget struct {
	Capacity     float64
	RefillPerSec float64
}

type providerState struct {
	tokens    float64
	last      time.Time
	notBefore time.Time
	attempts  int
}

// Controller governs outbound request pacing. All callers sharing a provider
// id serialize through the same budget: Acquire blocks until a permit is
// available, and OnResponse feeds throttling outcomes back in. A 429 drains
// the remaining budget and schedules the next permit no earlier than
// max(retryAfter, exponential backoff).
type Controller struct {
	mu        sync.Mutex
	providers map[string]*providerState
	budgets   map[string]Budget
	fallback  Budget

	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	rnd      *rand.Rand
	onWait   func(provider string, d time.Duration)
}

// Option configures a Controller.
type Option func(*Controller)

// WithBudget sets the token budget for a provider id.
func WithBudget(provider string, capacity, refillPerSec float64) Option {
	return func(c *Controller) {
		c.budgets[provider] = Budget{Capacity: capacity, RefillPerSec: refillPerSec}
	}
}

// WithDefaultBudget sets the budget used for providers without an explicit one.
func WithDefaultBudget(capacity, refillPerSec float64) Option {
	return func(c *Controller) {
		c.fallback = Budget{Capacity: capacity, RefillPerSec: refillPerSec}
	}
}

// WithClock injects a time source.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithSleeper injects the wait primitive.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Controller) { c.sleep = sleep }
}

// WithWaitObserver registers a callback invoked before every blocking wait.
func WithWaitObserver(fn func(provider string, d time.Duration)) Option {
	return func(c *Controller) { c.onWait = fn }
}

// New creates a rate controller.
func New(opts ...Option) *Controller {
	c := &Controller{
		providers: make(map[string]*providerState),
		budgets:   make(map[string]Budget),
		fallback:  Budget{Capacity: 10, RefillPerSec: 2},
		now:       time.Now,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	c.sleep = func(ctx context.Context, d time.Duration) error {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			return nil
		}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) budget(provider string) Budget {
	if b, ok := c.budgets[provider]; ok {
		return b
	}
	return c.fallback
}

func (c *Controller) state(provider string) *providerState {
	st, ok := c.providers[provider]
	if !ok {
		st = &providerState{tokens: c.budget(provider).Capacity, last: c.now()}
		c.providers[provider] = st
	}
	return st
}

// Acquire blocks until a permit for the provider is available or the context
// is canceled. Once a provider has been throttled maxAttempts times without
// an intervening success, it returns a RateLimitError.
func (c *Controller) Acquire(ctx context.Context, provider string) error {
	for {
		c.mu.Lock()
		st := c.state(provider)
		b := c.budget(provider)
		now := c.now()

		if elapsed := now.Sub(st.last).Seconds(); elapsed > 0 {
			st.tokens += elapsed * b.RefillPerSec
			if st.tokens > b.Capacity {
				st.tokens = b.Capacity
			}
			st.last = now
		}

		if st.attempts >= maxAttempts {
			attempts := st.attempts
			c.mu.Unlock()
			return &models.RateLimitError{Provider: provider, Attempts: attempts}
		}

		var wait time.Duration
		switch {
		case now.Before(st.notBefore):
			wait = st.notBefore.Sub(now)
		case st.tokens >= 1:
			st.tokens--
			c.mu.Unlock()
			return nil
		default:
			wait = time.Duration(float64(time.Second) * (1 - st.tokens) / b.RefillPerSec)
		}
		c.mu.Unlock()

		if c.onWait != nil {
			c.onWait(provider, wait)
		}
		if err := c.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// OnResponse reports the outcome of a permitted request. A 429 consumes the
// remaining budget for the provider and pushes the next permit out to
// max(retryAfter, exponential backoff with jitter). Any non-throttled,
// non-5xx response clears the attempt streak.
func (c *Controller) OnResponse(provider string, status int, retryAfter time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.state(provider)
	if status == http.StatusTooManyRequests {
		st.tokens = 0
		st.attempts++
		backoff := c.backoff(st.attempts)
		if retryAfter > backoff {
			backoff = retryAfter
		}
		st.notBefore = c.now().Add(backoff)
		return
	}
	if status < 500 {
		st.attempts = 0
	}
}

// Reset clears the throttle state for a provider. Called between batches so
// an exhausted provider gets a fresh attempt budget on the next pass.
func (c *Controller) Reset(provider string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.providers[provider]; ok {
		st.attempts = 0
		st.notBefore = time.Time{}
	}
}

func (c *Controller) backoff(attempt int) time.Duration {
	d := baseBackoff
	for i := 1; i < attempt; i++ {
		d *= backoffFactor
		if d >= maxBackoff {
			d = maxBackoff
			break
		}
	}
	// jitter in [-jitterFrac, +jitterFrac]
	j := 1 + jitterFrac*(2*c.rnd.Float64()-1)
	return time.Duration(float64(d) * j)
}
