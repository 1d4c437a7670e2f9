package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"VolScreen/internal/domain/models"
)

// Entry is one cached record plus its expiry metadata.
type Entry struct {
	Key           string              `json:"key"`
	Record        models.MarketRecord `json:"record"`
	ExpiresAt     time.Time           `json:"expires_at"`
	SessionWindow SessionWindow       `json:"session_window"`
}

// Fresh reports whether the entry is still valid at t.
func (e *Entry) Fresh(t time.Time) bool {
	return t.Before(e.ExpiresAt)
}

// PersistentCache is the session-aware record cache. Entries are never
// mutated in place: a refetch writes a new entry that atomically replaces
// the old one through the Store. Expiry is evaluated lazily at read time,
// and stale entries are pruned opportunistically on write, never by a
// background sweep. Failed fetches are never written, so the cache cannot
// be poisoned by an error marker.
type PersistentCache struct {
	store    Store
	sessions *SessionSchedule
	version  string
	now      func() time.Time

	pruneMu    sync.Mutex
	lastPrune  time.Time
	pruneEvery time.Duration
}

// PersistentOption configures a PersistentCache.
type PersistentOption func(*PersistentCache)

// WithClock injects a time source.
func WithClock(now func() time.Time) PersistentOption {
	return func(c *PersistentCache) { c.now = now }
}

// WithPruneInterval sets how often a write may trigger an expired-entry scan.
func WithPruneInterval(d time.Duration) PersistentOption {
	return func(c *PersistentCache) { c.pruneEvery = d }
}

// NewPersistentCache wraps a Store with session-aware expiry. The version
// string becomes part of every key, so bumping the metric-set version
// orphans old entries rather than serving records of the wrong shape.
func NewPersistentCache(store Store, sessions *SessionSchedule, version string, opts ...PersistentOption) *PersistentCache {
	c := &PersistentCache{
		store:      store,
		sessions:   sessions,
		version:    version,
		now:        time.Now,
		pruneEvery: time.Minute,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *PersistentCache) key(symbol string) string {
	return symbol + "@" + c.version
}

// Get returns the cached entry for a symbol and whether it is still fresh.
// An expired entry is still returned: a caller whose refetch fails may fall
// back to it with a stale warning instead of losing the symbol.
func (c *PersistentCache) Get(ctx context.Context, symbol string) (*Entry, bool, error) {
	b, err := c.store.Get(ctx, c.key(symbol))
	if err != nil {
		if err == ErrCacheMiss {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache get %s: %w", symbol, err)
	}
	var e Entry
	if err := json.Unmarshal(b, &e); err != nil {
		// Undecodable entries (e.g. written by an older build) are dropped.
		_ = c.store.Delete(ctx, c.key(symbol))
		return nil, false, nil
	}
	return &e, e.Fresh(c.now()), nil
}

// Put stores a successfully fetched record. The session window and expiry
// are derived from the write time.
func (c *PersistentCache) Put(ctx context.Context, symbol string, rec *models.MarketRecord) error {
	now := c.now()
	e := Entry{
		Key:           c.key(symbol),
		Record:        *rec,
		ExpiresAt:     c.sessions.ExpiresAt(now),
		SessionWindow: c.sessions.Classify(now),
	}
	b, err := json.Marshal(&e)
	if err != nil {
		return fmt.Errorf("cache marshal %s: %w", symbol, err)
	}
	if err := c.store.Put(ctx, e.Key, b); err != nil {
		return fmt.Errorf("cache put %s: %w", symbol, err)
	}
	c.maybePrune(ctx)
	return nil
}

// Invalidate removes a symbol's entry.
func (c *PersistentCache) Invalidate(ctx context.Context, symbol string) error {
	return c.store.Delete(ctx, c.key(symbol))
}

// Close closes the underlying store.
func (c *PersistentCache) Close() error {
	return c.store.Close()
}

// maybePrune drops expired entries, rate limited so a burst of writes does
// not rescan the store on every call.
func (c *PersistentCache) maybePrune(ctx context.Context) {
	now := c.now()
	c.pruneMu.Lock()
	if now.Sub(c.lastPrune) < c.pruneEvery {
		c.pruneMu.Unlock()
		return
	}
	c.lastPrune = now
	c.pruneMu.Unlock()

	keys, err := c.store.Keys(ctx)
	if err != nil {
		return
	}
	for _, k := range keys {
		b, err := c.store.Get(ctx, k)
		if err != nil {
			continue
		}
		var e Entry
		if err := json.Unmarshal(b, &e); err != nil || !e.Fresh(now) {
			_ = c.store.Delete(ctx, k)
		}
	}
}
