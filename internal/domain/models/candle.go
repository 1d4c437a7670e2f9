package models

import "time"

// Candle is one bar received from the volatility stream.
type Candle struct {
	Symbol string    `json:"symbol"`
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// FailureReport enumerates per-symbol failures from a fetch pass. It is
// informational: below the fail-fast threshold callers receive it alongside a
// partial result map and decide whether to proceed.
type FailureReport struct {
	Total    int               `json:"total"`
	Failures map[string]string `json:"failures,omitempty"`
}

// Failed returns the number of symbols that produced no record at all.
func (r *FailureReport) Failed() int {
	if r == nil {
		return 0
	}
	return len(r.Failures)
}

// Add records a failure reason for a symbol.
func (r *FailureReport) Add(symbol, reason string) {
	if r.Failures == nil {
		r.Failures = make(map[string]string)
	}
	r.Failures[symbol] = reason
}
