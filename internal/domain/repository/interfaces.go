package repository

import (
	"context"

	"VolScreen/internal/domain/models"
)

// Provider is a market data upstream. New sources are added by implementing
// this interface; the merge layer consults Owns, never field names, to decide
// which fields a provider may contribute.
type Provider interface {
	// Name identifies the provider for rate budgets, logs and errors.
	Name() string
	// Owns declares the exact field set this provider is authoritative for.
	Owns() []models.Field
	// FetchBatch resolves many symbols in one call where the upstream
	// protocol allows it. Symbols missing from the result map failed
	// individually; a non-nil error means the whole batch failed.
	FetchBatch(ctx context.Context, symbols []string) (map[string]*models.PartialRecord, error)
}

// CandleSource streams historical candles for symbols the batch providers
// cannot serve. Partial results below the configured sample floor fail with
// a StreamTimeoutError instead of returning a statistically unusable series.
type CandleSource interface {
	FetchCandles(ctx context.Context, symbol string, windowDays, minSamples int) ([]models.Candle, error)
}

// Resolver produces one merged record per symbol.
type Resolver interface {
	// Resolve fetches and merges all sources for a symbol.
	Resolve(ctx context.Context, symbol string) (*models.MarketRecord, error)
	// Reset clears batch-scoped state (e.g. a primary auth failure latch)
	// before a new fetch pass.
	Reset()
}

// Exporter receives the result set of a successful fetch pass.
type Exporter interface {
	Export(ctx context.Context, records []*models.MarketRecord) error
	Close() error
}

// Metrics records operational counters for observability.
type Metrics interface {
	RecordFetch(source string)
	RecordCacheHit()
	RecordCacheMiss()
	RecordProviderError(provider, kind string)
	RecordRateLimitWait(provider string, seconds float64)
	RecordFetchLatency(op string, seconds float64)
	RecordRunResult(fetched, failed int)
}
