package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"VolScreen/internal/domain/models"
	"VolScreen/pkg/cache"
	"VolScreen/pkg/logger"
)

// fakeResolver counts resolves and tracks in-flight concurrency.
type fakeResolver struct {
	mu       sync.Mutex
	fail     map[string]bool
	delay    time.Duration
	calls    atomic.Int64
	inFlight atomic.Int64
	maxSeen  atomic.Int64
	resets   atomic.Int64
}

func (r *fakeResolver) Resolve(ctx context.Context, symbol string) (*models.MarketRecord, error) {
	r.calls.Add(1)
	cur := r.inFlight.Add(1)
	defer r.inFlight.Add(-1)
	for {
		seen := r.maxSeen.Load()
		if cur <= seen || r.maxSeen.CompareAndSwap(seen, cur) {
			break
		}
	}
	if r.delay > 0 {
		time.Sleep(r.delay)
	}

	r.mu.Lock()
	failing := r.fail[symbol]
	r.mu.Unlock()
	if failing {
		return nil, fmt.Errorf("resolve %s: upstream down", symbol)
	}
	return &models.MarketRecord{
		Symbol:     symbol,
		IV:         models.Float(20),
		Price:      models.Float(100),
		DataSource: models.SourceComposite,
		FetchedAt:  time.Date(2026, time.March, 3, 11, 0, 0, 0, time.UTC),
	}, nil
}

func (r *fakeResolver) Reset() { r.resets.Add(1) }

// newTestCache builds a memory-backed cache pinned to a Tuesday mid-session,
// so entries written during a test stay fresh until the 16:00 close.
func newTestCache(t *testing.T) *cache.PersistentCache {
	t.Helper()
	sched, err := cache.NewSessionSchedule("09:30", "16:00", "America/New_York")
	require.NoError(t, err)
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	now := time.Date(2026, time.March, 3, 11, 0, 0, 0, loc)
	return cache.NewPersistentCache(cache.NewMemoryStore(), sched, "v1",
		cache.WithClock(func() time.Time { return now }))
}

func symbolSet(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("SYM%02d", i)
	}
	return out
}

func TestFetchAllResolvesAndCaches(t *testing.T) {
	r := &fakeResolver{}
	o := NewOrchestrator(newTestCache(t), r, nopMetrics{}, logger.NewNop(), 4, 0.2)

	recs, report, err := o.FetchAll(context.Background(), []string{"SPY", "QQQ"})
	require.NoError(t, err)
	assert.Equal(t, 0, report.Failed())
	require.Len(t, recs, 2)
	assert.Equal(t, int64(1), r.resets.Load())
	assert.Equal(t, int64(2), r.calls.Load())
}

func TestFetchAllSecondPassServedFromCache(t *testing.T) {
	r := &fakeResolver{}
	o := NewOrchestrator(newTestCache(t), r, nopMetrics{}, logger.NewNop(), 4, 0.2)
	symbols := []string{"SPY", "QQQ", "IWM"}

	first, _, err := o.FetchAll(context.Background(), symbols)
	require.NoError(t, err)
	require.Equal(t, int64(3), r.calls.Load())

	second, _, err := o.FetchAll(context.Background(), symbols)
	require.NoError(t, err)
	assert.Equal(t, int64(3), r.calls.Load(), "second pass must not touch the network")

	// Cached records serialize byte-identical to the originals.
	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestFetchAllFailFastBoundary(t *testing.T) {
	symbols := symbolSet(10)

	// Exactly at the ratio: 2 of 10 at 0.20 does not trip the threshold.
	r := &fakeResolver{fail: map[string]bool{"SYM00": true, "SYM01": true}}
	o := NewOrchestrator(newTestCache(t), r, nopMetrics{}, logger.NewNop(), 4, 0.2)
	recs, report, err := o.FetchAll(context.Background(), symbols)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Failed())
	assert.Len(t, recs, 8)
	assert.Contains(t, report.Failures["SYM00"], "upstream down")
}

func TestFetchAllFailFastAboveRatio(t *testing.T) {
	symbols := symbolSet(10)
	r := &fakeResolver{fail: map[string]bool{"SYM00": true, "SYM01": true, "SYM02": true}}
	o := NewOrchestrator(newTestCache(t), r, nopMetrics{}, logger.NewNop(), 4, 0.2)

	recs, report, err := o.FetchAll(context.Background(), symbols)
	require.Error(t, err)
	assert.Nil(t, recs)
	assert.Equal(t, 3, report.Failed())

	var dqe *models.DataQualityError
	require.ErrorAs(t, err, &dqe)
	assert.Equal(t, 3, dqe.Failed)
	assert.Equal(t, 10, dqe.Total)
}

func TestFetchAllHalfFailingAlwaysTrips(t *testing.T) {
	symbols := symbolSet(10)
	fail := map[string]bool{}
	for i := 0; i < 5; i++ {
		fail[fmt.Sprintf("SYM%02d", i)] = true
	}
	r := &fakeResolver{fail: fail}
	o := NewOrchestrator(newTestCache(t), r, nopMetrics{}, logger.NewNop(), 4, 0.2)

	_, _, err := o.FetchAll(context.Background(), symbols)
	var dqe *models.DataQualityError
	require.ErrorAs(t, err, &dqe)
}

func TestFetchAllStaleFallbackOnResolveFailure(t *testing.T) {
	sched, err := cache.NewSessionSchedule("09:30", "16:00", "America/New_York")
	require.NoError(t, err)
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// Movable clock: the entry written on the first pass expires before the
	// second.
	now := time.Date(2026, time.March, 3, 11, 0, 0, 0, loc)
	c := cache.NewPersistentCache(cache.NewMemoryStore(), sched, "v1",
		cache.WithClock(func() time.Time { return now }))

	r := &fakeResolver{}
	o := NewOrchestrator(c, r, nopMetrics{}, logger.NewNop(), 2, 0.2)

	_, _, err = o.FetchAll(context.Background(), []string{"SPY"})
	require.NoError(t, err)

	// Past the close the entry is stale; the resolver now fails too.
	now = time.Date(2026, time.March, 3, 17, 0, 0, 0, loc)
	r.mu.Lock()
	r.fail = map[string]bool{"SPY": true}
	r.mu.Unlock()

	recs, report, err := o.FetchAll(context.Background(), []string{"SPY"})
	require.NoError(t, err)
	assert.Equal(t, 0, report.Failed())
	rec := recs["SPY"]
	assert.True(t, rec.HasWarning(models.WarnStale))
	assert.Equal(t, 20.0, *rec.IV)
}

func TestFetchAllConcurrencyBounded(t *testing.T) {
	r := &fakeResolver{delay: 20 * time.Millisecond}
	o := NewOrchestrator(newTestCache(t), r, nopMetrics{}, logger.NewNop(), 5, 0.2)

	_, _, err := o.FetchAll(context.Background(), symbolSet(30))
	require.NoError(t, err)
	assert.LessOrEqual(t, r.maxSeen.Load(), int64(5))
	assert.Equal(t, int64(30), r.calls.Load())
}

func TestFetchAllDeduplicatesSymbols(t *testing.T) {
	r := &fakeResolver{}
	o := NewOrchestrator(newTestCache(t), r, nopMetrics{}, logger.NewNop(), 4, 0.2)

	recs, report, err := o.FetchAll(context.Background(), []string{"SPY", "SPY", "QQQ"})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Total)
	assert.Len(t, recs, 2)
	assert.Equal(t, int64(2), r.calls.Load())
}

func TestFetchAllContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := &fakeResolver{}
	o := NewOrchestrator(newTestCache(t), r, nopMetrics{}, logger.NewNop(), 4, 0.2)

	_, _, err := o.FetchAll(ctx, symbolSet(10))
	require.ErrorIs(t, err, context.Canceled)
}
