package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"VolScreen/internal/domain/models"
)

func testCache(t *testing.T, now *time.Time) *PersistentCache {
	t.Helper()
	return NewPersistentCache(
		NewMemoryStore(),
		newSchedule(t),
		"v1",
		WithClock(func() time.Time { return *now }),
		WithPruneInterval(0),
	)
}

func TestPutGetRoundtrip(t *testing.T) {
	now := nyTime(t, 2026, time.March, 3, 10, 0)
	c := testCache(t, &now)
	ctx := context.Background()

	rec := &models.MarketRecord{
		Symbol:     "SPY",
		IV:         models.Float(22.5),
		Price:      models.Float(512.4),
		DataSource: models.SourceComposite,
		FetchedAt:  now.UTC(),
	}
	require.NoError(t, c.Put(ctx, "SPY", rec))

	e, fresh, err := c.Get(ctx, "SPY")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.True(t, fresh)
	assert.Equal(t, "SPY@v1", e.Key)
	assert.Equal(t, WindowIntraday, e.SessionWindow)
	assert.Equal(t, "SPY", e.Record.Symbol)
	require.NotNil(t, e.Record.IV)
	assert.Equal(t, 22.5, *e.Record.IV)
	require.NotNil(t, e.Record.Price)
	assert.Equal(t, 512.4, *e.Record.Price)
	assert.Equal(t, models.SourceComposite, e.Record.DataSource)
}

func TestGetMiss(t *testing.T) {
	now := nyTime(t, 2026, time.March, 3, 10, 0)
	c := testCache(t, &now)

	e, fresh, err := c.Get(context.Background(), "MISSING")
	require.NoError(t, err)
	assert.Nil(t, e)
	assert.False(t, fresh)
}

func TestExpiredEntryStillReturned(t *testing.T) {
	now := nyTime(t, 2026, time.March, 3, 10, 0)
	c := testCache(t, &now)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "SPY", &models.MarketRecord{Symbol: "SPY", FetchedAt: now}))

	// Advance past the session close: entry is stale but not gone, so a
	// failing refetch can still fall back to it.
	now = nyTime(t, 2026, time.March, 3, 16, 30)
	e, fresh, err := c.Get(ctx, "SPY")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.False(t, fresh)
}

func TestVersionIsolatesEntries(t *testing.T) {
	now := nyTime(t, 2026, time.March, 3, 10, 0)
	store := NewMemoryStore()
	sched := newSchedule(t)
	clock := WithClock(func() time.Time { return now })

	v1 := NewPersistentCache(store, sched, "v1", clock)
	v2 := NewPersistentCache(store, sched, "v2", clock)
	ctx := context.Background()

	require.NoError(t, v1.Put(ctx, "SPY", &models.MarketRecord{Symbol: "SPY"}))

	e, _, err := v2.Get(ctx, "SPY")
	require.NoError(t, err)
	assert.Nil(t, e, "a version bump must orphan old entries")
}

func TestInvalidate(t *testing.T) {
	now := nyTime(t, 2026, time.March, 3, 10, 0)
	c := testCache(t, &now)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "SPY", &models.MarketRecord{Symbol: "SPY"}))
	require.NoError(t, c.Invalidate(ctx, "SPY"))

	e, _, err := c.Get(ctx, "SPY")
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestWriteReplacesAtomically(t *testing.T) {
	now := nyTime(t, 2026, time.March, 3, 10, 0)
	c := testCache(t, &now)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "SPY", &models.MarketRecord{Symbol: "SPY", Price: models.Float(500)}))
	require.NoError(t, c.Put(ctx, "SPY", &models.MarketRecord{Symbol: "SPY", Price: models.Float(501)}))

	e, _, err := c.Get(ctx, "SPY")
	require.NoError(t, err)
	require.NotNil(t, e.Record.Price)
	assert.Equal(t, 501.0, *e.Record.Price)
}

func TestPruneDropsExpiredOnWrite(t *testing.T) {
	now := nyTime(t, 2026, time.March, 3, 10, 0)
	store := NewMemoryStore()
	c := NewPersistentCache(store, newSchedule(t), "v1",
		WithClock(func() time.Time { return now }),
		WithPruneInterval(0))
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "OLD", &models.MarketRecord{Symbol: "OLD"}))

	// Next trading day: OLD has expired; a new write sweeps it out.
	now = nyTime(t, 2026, time.March, 4, 10, 0)
	require.NoError(t, c.Put(ctx, "NEW", &models.MarketRecord{Symbol: "NEW"}))

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"NEW@v1"}, keys)
}

func TestBoltStoreRoundtrip(t *testing.T) {
	path := t.TempDir() + "/cache.db"
	store, err := NewBoltStore(path)
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "k", []byte("v1")))
	require.NoError(t, store.Put(ctx, "k", []byte("v2")))

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"k"}, keys)

	require.NoError(t, store.Delete(ctx, "k"))
	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}
