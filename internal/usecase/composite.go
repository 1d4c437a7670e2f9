package usecase

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"VolScreen/internal/domain/models"
	drepo "VolScreen/internal/domain/repository"
	"VolScreen/internal/service/ratelimit"
	"VolScreen/internal/service/stream"
	"VolScreen/pkg/logger"
)

// Composite merges the primary metrics provider, the secondary price
// provider and the streaming volatility fallback into single records. Field
// ownership comes from each provider's Owns declaration, so the merge never
// guesses which source a field belongs to.
type Composite struct {
	primary   drepo.Provider
	secondary drepo.Provider
	candles   drepo.CandleSource

	windowDays int
	minSamples int
	proxies    map[string]string

	log     *logger.Logger
	metrics drepo.Metrics

	throttle    *ratelimit.Controller
	throttleIDs []string

	// Set when the primary rejects our credentials. Auth failures are fatal
	// for the provider for the remainder of the batch; Reset clears it.
	primaryDown atomic.Bool
}

// CompositeOption configures a Composite.
type CompositeOption func(*Composite)

// WithProxies maps symbols to the proxy instrument their price data comes
// from (e.g. a futures root priced off a related ETF).
func WithProxies(proxies map[string]string) CompositeOption {
	return func(c *Composite) { c.proxies = proxies }
}

// WithStreamWindow sets the candle window and minimum sample floor used for
// the historical volatility fallback.
func WithStreamWindow(windowDays, minSamples int) CompositeOption {
	return func(c *Composite) {
		c.windowDays = windowDays
		c.minSamples = minSamples
	}
}

// WithThrottleReset clears the named providers' throttle state on every pass
// reset, so a provider that exhausted its attempt budget is retried on the
// next run instead of staying dead until restart.
func WithThrottleReset(rc *ratelimit.Controller, providers ...string) CompositeOption {
	return func(c *Composite) {
		c.throttle = rc
		c.throttleIDs = providers
	}
}

// NewComposite creates the merging resolver.
func NewComposite(primary, secondary drepo.Provider, candles drepo.CandleSource, m drepo.Metrics, log *logger.Logger, opts ...CompositeOption) *Composite {
	c := &Composite{
		primary:    primary,
		secondary:  secondary,
		candles:    candles,
		windowDays: 90,
		minSamples: 50,
		log:        log,
		metrics:    m,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Reset clears the primary auth latch and the providers' throttle state. The
// orchestrator calls it at the start of every fetch pass so a rotated key or
// an exhausted attempt budget gets a fresh chance.
func (c *Composite) Reset() {
	c.primaryDown.Store(false)
	if c.throttle != nil {
		for _, p := range c.throttleIDs {
			c.throttle.Reset(p)
		}
	}
}

// Resolve fetches the symbol from both providers concurrently and merges the
// results by declared field ownership. A total primary failure degrades the
// record to secondary-only with a "fallback" tag; a missing HV set triggers
// the targeted stream fallback.
func (c *Composite) Resolve(ctx context.Context, symbol string) (*models.MarketRecord, error) {
	priceSymbol := symbol
	proxied := false
	if p, ok := c.proxies[symbol]; ok && p != "" {
		priceSymbol = p
		proxied = true
	}

	var (
		pPart, sPart *models.PartialRecord
		pErr, sErr   error
		wg           sync.WaitGroup
	)

	primarySkipped := c.primaryDown.Load()
	if !primarySkipped {
		wg.Add(1)
		go func() {
			defer wg.Done()
			batch, err := c.primary.FetchBatch(ctx, []string{symbol})
			if err != nil {
				pErr = err
				return
			}
			pPart = batch[symbol]
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		batch, err := c.secondary.FetchBatch(ctx, []string{priceSymbol})
		if err != nil {
			sErr = err
			return
		}
		sPart = batch[priceSymbol]
	}()
	wg.Wait()

	if pErr != nil {
		c.metrics.RecordProviderError(c.primary.Name(), errorKind(pErr))
		if models.IsAuthError(pErr) {
			c.primaryDown.Store(true)
			c.log.Error("primary provider rejected credentials, degrading batch",
				logger.String("provider", c.primary.Name()), logger.Error(pErr))
		} else {
			c.log.Warn("primary provider failed",
				logger.String("symbol", symbol), logger.Error(pErr))
		}
	}
	if sErr != nil {
		c.metrics.RecordProviderError(c.secondary.Name(), errorKind(sErr))
	}

	primaryFailed := pErr != nil || primarySkipped
	secondaryMissing := sErr != nil || sPart == nil

	if primaryFailed && secondaryMissing {
		if sErr != nil {
			return nil, fmt.Errorf("resolve %s: all providers failed: %w", symbol, sErr)
		}
		return nil, fmt.Errorf("resolve %s: all providers failed", symbol)
	}
	if !primaryFailed && pPart == nil && secondaryMissing {
		return nil, fmt.Errorf("resolve %s: no provider recognized the symbol", symbol)
	}

	rec := &models.MarketRecord{Symbol: symbol, FetchedAt: time.Now().UTC()}
	if !primaryFailed {
		models.Apply(rec, pPart, c.primary.Owns())
	}
	if sErr == nil {
		models.Apply(rec, sPart, c.secondary.Owns())
	}

	switch {
	case primaryFailed:
		rec.DataSource = models.SourceSecondaryOnly
		rec.AddWarning(models.WarnFallback)
	case pPart != nil && sPart != nil:
		rec.DataSource = models.SourceComposite
	case pPart != nil:
		rec.DataSource = models.SourcePrimary
		rec.AddWarning(models.WarnPartial)
	default:
		rec.DataSource = models.SourceSecondaryOnly
		rec.AddWarning(models.WarnPartial)
	}

	if !rec.HasHV() && !primaryFailed && c.candles != nil {
		c.streamFallback(ctx, symbol, rec)
	}
	if proxied {
		rec.AddWarning(models.WarnCrossAssetProxy)
	}

	c.metrics.RecordFetch(string(rec.DataSource))
	return rec, nil
}

// streamFallback fills historical volatility from the candle stream for a
// symbol the primary could not serve. Failure here never fails the record;
// the HV fields stay absent with a partial warning.
func (c *Composite) streamFallback(ctx context.Context, symbol string, rec *models.MarketRecord) {
	candles, err := c.candles.FetchCandles(ctx, symbol, c.windowDays, c.minSamples)
	if err != nil {
		c.metrics.RecordProviderError("stream", errorKind(err))
		c.log.Warn("stream volatility fallback failed",
			logger.String("symbol", symbol), logger.Error(err))
		rec.AddWarning(models.WarnPartial)
		return
	}

	models.Apply(rec, stream.HVWindows(candles), models.HVFields)
	rec.DataSource = models.SourceStreamFallback
	if len(candles) < c.windowDays {
		rec.AddWarning(models.WarnPartialWindow)
	}
}

func errorKind(err error) string {
	switch {
	case models.IsAuthError(err):
		return "auth"
	case models.IsRateLimit(err):
		return "rate_limit"
	case models.IsStreamTimeout(err):
		return "stream_timeout"
	default:
		return "transient"
	}
}
