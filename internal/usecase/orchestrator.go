package usecase

import (
	"context"
	"sync"
	"time"

	"VolScreen/internal/domain/models"
	drepo "VolScreen/internal/domain/repository"
	"VolScreen/pkg/cache"
	"VolScreen/pkg/logger"
)

// Orchestrator drives one fetch pass over a symbol universe: cache lookup,
// resolve on miss, cache write on success. It never caches failures; a failed
// resolve falls back to a stale cache entry when one exists.
type Orchestrator struct {
	cache    *cache.PersistentCache
	resolver drepo.Resolver
	metrics  drepo.Metrics
	log      *logger.Logger

	concurrency   int
	failFastRatio float64
}

// NewOrchestrator creates the fetch orchestrator.
func NewOrchestrator(c *cache.PersistentCache, r drepo.Resolver, m drepo.Metrics, log *logger.Logger, concurrency int, failFastRatio float64) *Orchestrator {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Orchestrator{
		cache:         c,
		resolver:      r,
		metrics:       m,
		log:           log,
		concurrency:   concurrency,
		failFastRatio: failFastRatio,
	}
}

// FetchAll resolves every symbol through a bounded worker pool and returns
// the per-symbol records plus a report of outright failures. When strictly
// more than failFastRatio of the batch fails outright, the pass returns a
// DataQualityError and the partial map is withheld.
func (o *Orchestrator) FetchAll(ctx context.Context, symbols []string) (map[string]models.MarketRecord, *models.FailureReport, error) {
	symbols = dedupe(symbols)
	o.resolver.Reset()

	report := &models.FailureReport{Total: len(symbols)}
	results := make(map[string]models.MarketRecord, len(symbols))
	var mu sync.Mutex

	workers := o.concurrency
	if workers > len(symbols) {
		workers = len(symbols)
	}

	jobs := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for symbol := range jobs {
				rec, reason := o.fetchOne(ctx, symbol)
				mu.Lock()
				if rec != nil {
					results[symbol] = *rec
				} else {
					report.Add(symbol, reason)
				}
				mu.Unlock()
			}
		}()
	}

feed:
	for _, s := range symbols {
		select {
		case jobs <- s:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if ctx.Err() != nil {
		return nil, report, ctx.Err()
	}

	failed := report.Failed()
	if float64(failed) > o.failFastRatio*float64(len(symbols)) {
		return nil, report, &models.DataQualityError{
			Failed: failed,
			Total:  len(symbols),
			Ratio:  o.failFastRatio,
		}
	}
	o.metrics.RecordRunResult(len(results), failed)
	return results, report, nil
}

// fetchOne resolves a single symbol. It returns the record to keep, or a
// failure reason when no record at all could be produced.
func (o *Orchestrator) fetchOne(ctx context.Context, symbol string) (*models.MarketRecord, string) {
	entry, fresh, err := o.cache.Get(ctx, symbol)
	if err != nil {
		o.log.Warn("cache read failed", logger.String("symbol", symbol), logger.Error(err))
	}
	if fresh {
		o.metrics.RecordCacheHit()
		rec := entry.Record
		return &rec, ""
	}
	o.metrics.RecordCacheMiss()

	start := time.Now()
	rec, rerr := o.resolver.Resolve(ctx, symbol)
	o.metrics.RecordFetchLatency("resolve", time.Since(start).Seconds())
	if rerr != nil {
		if entry != nil {
			// Expired data beats no data, but the staleness must be visible.
			o.log.Warn("serving stale cache entry after resolve failure",
				logger.String("symbol", symbol), logger.Error(rerr))
			stale := entry.Record
			stale.AddWarning(models.WarnStale)
			return &stale, ""
		}
		return nil, rerr.Error()
	}

	if err := o.cache.Put(ctx, symbol, rec); err != nil {
		o.log.Warn("cache write failed", logger.String("symbol", symbol), logger.Error(err))
	}
	return rec, ""
}

func dedupe(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
