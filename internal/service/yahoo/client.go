package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/piquette/finance-go/quote"

	"VolScreen/internal/domain/models"
	drepo "VolScreen/internal/domain/repository"
	"VolScreen/internal/service/ratelimit"
	xhttp "VolScreen/pkg/http"
	"VolScreen/pkg/logger"
)

const providerName = "yahoo"

// calendarPad widens the chart request so weekends and holidays still leave
// enough trading days to fill the configured returns window.
const calendarPad = 2

// Client implements the secondary price provider on top of Yahoo Finance:
// spot price and a daily-returns series via finance-go, and the sector via
// the quoteSummary assetProfile endpoint.
type Client struct {
	quoteSummaryURL string
	returnsDays     int
	http            *xhttp.Client
	rc              *ratelimit.Controller
	log             *logger.Logger
}

// New creates a Yahoo client returning returnsDays most recent daily returns.
func New(quoteSummaryURL string, returnsDays int, rc *ratelimit.Controller, log *logger.Logger, timeout time.Duration) drepo.Provider {
	return &Client{
		quoteSummaryURL: quoteSummaryURL,
		returnsDays:     returnsDays,
		http:            xhttp.NewClient(xhttp.WithTimeout(timeout)),
		rc:              rc,
		log:             log,
	}
}

func (c *Client) Name() string { return providerName }

func (c *Client) Owns() []models.Field {
	return []models.Field{models.FieldPrice, models.FieldReturns, models.FieldSector}
}

// FetchBatch resolves symbols one by one; a symbol that cannot be priced is
// left out of the result map rather than failing the batch. Rate-limit
// exhaustion aborts the whole batch since every remaining symbol would hit
// the same wall.
func (c *Client) FetchBatch(ctx context.Context, symbols []string) (map[string]*models.PartialRecord, error) {
	out := make(map[string]*models.PartialRecord, len(symbols))
	for _, symbol := range symbols {
		part, err := c.fetchOne(ctx, symbol)
		if err != nil {
			if models.IsRateLimit(err) || ctx.Err() != nil {
				return nil, err
			}
			c.log.Warn("yahoo fetch failed",
				logger.String("symbol", symbol), logger.Error(err))
			continue
		}
		out[symbol] = part
	}
	return out, nil
}

func (c *Client) fetchOne(ctx context.Context, symbol string) (*models.PartialRecord, error) {
	if err := c.rc.Acquire(ctx, providerName); err != nil {
		return nil, err
	}
	q, err := quote.Get(symbol)
	if err != nil {
		c.rc.OnResponse(providerName, 0, 0)
		return nil, fmt.Errorf("quote %s: %w", symbol, err)
	}
	if q == nil {
		return nil, fmt.Errorf("quote %s: empty response", symbol)
	}
	c.rc.OnResponse(providerName, http.StatusOK, 0)

	part := &models.PartialRecord{
		Price: models.Float(q.RegularMarketPrice),
	}

	returns, err := c.fetchReturns(ctx, symbol)
	if err != nil {
		return nil, err
	}
	part.Returns = returns

	// Sector is best effort. ETFs and indices have no assetProfile and the
	// record stays useful without one.
	sector, err := c.fetchSector(ctx, symbol)
	if err != nil {
		c.log.Debug("sector lookup failed",
			logger.String("symbol", symbol), logger.Error(err))
	}
	part.Sector = sector

	return part, nil
}

// fetchReturns loads daily closes and derives simple returns, most recent
// last, truncated to the configured window.
func (c *Client) fetchReturns(ctx context.Context, symbol string) ([]float64, error) {
	if err := c.rc.Acquire(ctx, providerName); err != nil {
		return nil, err
	}

	end := time.Now()
	start := end.AddDate(0, 0, -c.returnsDays*calendarPad)
	iter := chart.Get(&chart.Params{
		Symbol:   symbol,
		Start:    datetime.New(&start),
		End:      datetime.New(&end),
		Interval: datetime.OneDay,
	})

	var closes []float64
	for iter.Next() {
		bar := iter.Bar()
		if v := bar.Close.InexactFloat64(); v > 0 {
			closes = append(closes, v)
		}
	}
	if err := iter.Err(); err != nil {
		c.rc.OnResponse(providerName, 0, 0)
		return nil, fmt.Errorf("chart %s: %w", symbol, err)
	}
	c.rc.OnResponse(providerName, http.StatusOK, 0)

	returns := make([]float64, 0, len(closes))
	for i := 1; i < len(closes); i++ {
		r := closes[i]/closes[i-1] - 1
		if math.IsNaN(r) || math.IsInf(r, 0) {
			continue
		}
		returns = append(returns, r)
	}
	if len(returns) > c.returnsDays {
		returns = returns[len(returns)-c.returnsDays:]
	}
	return returns, nil
}

type quoteSummaryResponse struct {
	QuoteSummary struct {
		Result []struct {
			AssetProfile struct {
				Sector string `json:"sector"`
			} `json:"assetProfile"`
		} `json:"result"`
	} `json:"quoteSummary"`
}

func (c *Client) fetchSector(ctx context.Context, symbol string) (string, error) {
	if err := c.rc.Acquire(ctx, providerName); err != nil {
		return "", err
	}

	resp, err := c.http.SendRequest(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    c.quoteSummaryURL + "/" + symbol,
		QueryParams: map[string][]string{
			"modules": {"assetProfile"},
		},
	})
	if err != nil {
		c.rc.OnResponse(providerName, 0, 0)
		return "", fmt.Errorf("quoteSummary %s: %w", symbol, err)
	}
	defer resp.Body.Close()
	c.rc.OnResponse(providerName, resp.StatusCode, 0)

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("quoteSummary %s: status %d", symbol, resp.StatusCode)
	}

	var qs quoteSummaryResponse
	if err := json.NewDecoder(resp.Body).Decode(&qs); err != nil {
		return "", fmt.Errorf("quoteSummary %s: decode: %w", symbol, err)
	}
	if len(qs.QuoteSummary.Result) == 0 {
		return "", nil
	}
	return qs.QuoteSummary.Result[0].AssetProfile.Sector, nil
}
