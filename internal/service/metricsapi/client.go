package metricsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"VolScreen/internal/domain/models"
	drepo "VolScreen/internal/domain/repository"
	"VolScreen/internal/service/ratelimit"
	xhttp "VolScreen/pkg/http"
	"VolScreen/pkg/logger"
	"VolScreen/pkg/util"
)

const providerName = "metricsapi"

// transientRetries bounds connection-level retries inside one FetchBatch;
// throttling backoff is owned entirely by the rate controller.
const transientRetries = 3

// Client implements the primary volatility metrics provider: one batched
// call returns IV, IV rank/percentile, HV windows, liquidity and the next
// earnings date for many symbols.
type Client struct {
	baseURL string
	apiKey  string
	http    *xhttp.Client
	rc      *ratelimit.Controller
	log     *logger.Logger
}

// New creates a metrics API client.
func New(baseURL, apiKey string, rc *ratelimit.Controller, log *logger.Logger, timeout time.Duration) drepo.Provider {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    xhttp.NewClient(xhttp.WithTimeout(timeout)),
		rc:      rc,
		log:     log,
	}
}

func (c *Client) Name() string { return providerName }

// Owns declares the primary provider's field set. The merge layer uses this
// declaration, never field names, to decide ownership.
func (c *Client) Owns() []models.Field {
	return []models.Field{
		models.FieldIV, models.FieldIVRank, models.FieldIVPercentile,
		models.FieldHV20, models.FieldHV30, models.FieldHV90, models.FieldHV252,
		models.FieldLiquidity, models.FieldEarningsDate,
	}
}

type symbolMetrics struct {
	Symbol       string   `json:"symbol"`
	IV           *float64 `json:"iv"`
	IVRank       *float64 `json:"iv_rank"`
	IVPercentile *float64 `json:"iv_percentile"`
	HV20         *float64 `json:"hv20"`
	HV30         *float64 `json:"hv30"`
	HV90         *float64 `json:"hv90"`
	HV252        *float64 `json:"hv252"`
	Liquidity    *int     `json:"liquidity"`
	EarningsDate string   `json:"earnings_date"`
	Error        string   `json:"error"`
}

type metricsResponse struct {
	Data []symbolMetrics `json:"data"`
}

// FetchBatch resolves metrics for all symbols in one request. Upstream
// reports per-symbol errors inline, so one bad ticker does not fail the
// batch; those symbols are simply absent from the result map.
func (c *Client) FetchBatch(ctx context.Context, symbols []string) (map[string]*models.PartialRecord, error) {
	transient := 0
	for {
		if err := c.rc.Acquire(ctx, providerName); err != nil {
			return nil, err
		}

		resp, err := c.http.SendRequest(ctx, &xhttp.RequestOptions{
			Method: xhttp.MethodGet,
			URL:    c.baseURL + "/v1/metrics",
			Headers: map[string]string{
				"X-Api-Key": c.apiKey,
			},
			QueryParams: map[string][]string{
				"symbols": {strings.Join(symbols, ",")},
			},
		})
		if err != nil {
			c.rc.OnResponse(providerName, 0, 0)
			transient++
			if transient >= transientRetries {
				return nil, &models.TransientError{Provider: providerName, Err: err}
			}
			c.log.Warn("metrics request failed, retrying",
				logger.Error(err), logger.Int("attempt", transient))
			continue
		}

		result, retry, err := c.handleResponse(resp, symbols)
		if err != nil {
			return nil, err
		}
		switch retry {
		case retryThrottled:
			// The controller owns throttle retries: the next Acquire blocks
			// through the backoff and surfaces a RateLimitError once the
			// provider's attempt budget is spent.
			continue
		case retryTransient:
			transient++
			if transient >= transientRetries {
				return nil, &models.TransientError{
					Provider: providerName,
					Err:      fmt.Errorf("upstream unavailable after %d attempts", transient),
				}
			}
			continue
		}
		return result, nil
	}
}

type retryClass int

const (
	retryNone retryClass = iota
	retryThrottled
	retryTransient
)

func (c *Client) handleResponse(resp *http.Response, symbols []string) (map[string]*models.PartialRecord, retryClass, error) {
	defer resp.Body.Close()
	c.rc.OnResponse(providerName, resp.StatusCode, retryAfter(resp))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, retryNone, &models.AuthError{
			Provider: providerName,
			Err:      fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, retryThrottled, nil
	case resp.StatusCode >= 500:
		return nil, retryTransient, nil
	case resp.StatusCode != http.StatusOK:
		return nil, retryNone, fmt.Errorf("%s: unexpected status %d", providerName, resp.StatusCode)
	}

	var mr metricsResponse
	if err := json.NewDecoder(resp.Body).Decode(&mr); err != nil {
		return nil, retryNone, fmt.Errorf("%s: decode response: %w", providerName, err)
	}

	out := make(map[string]*models.PartialRecord, len(symbols))
	for _, m := range mr.Data {
		if m.Error != "" {
			c.log.Debug("symbol rejected by metrics api",
				logger.String("symbol", m.Symbol), logger.String("reason", m.Error))
			continue
		}
		out[m.Symbol] = c.toPartial(m)
	}
	return out, retryNone, nil
}

// toPartial converts one wire entry, normalizing IV reported as a fraction
// (0.22 instead of 22) to annualized percent.
func (c *Client) toPartial(m symbolMetrics) *models.PartialRecord {
	p := &models.PartialRecord{
		IV:              m.IV,
		IVRank:          m.IVRank,
		IVPercentile:    m.IVPercentile,
		HV20:            m.HV20,
		HV30:            m.HV30,
		HV90:            m.HV90,
		HV252:           m.HV252,
		LiquidityRating: m.Liquidity,
	}
	if p.IV != nil && *p.IV > 0 && *p.IV <= 3 {
		p.IV = models.Float(*p.IV * 100)
		p.Warnings = append(p.Warnings, models.WarnIVScaleCorrected)
	}
	if m.EarningsDate != "" {
		if d, ok := util.ParseDate(m.EarningsDate); ok {
			p.EarningsDate = &d
		}
	}
	return p
}

func retryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
