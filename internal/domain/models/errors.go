package models

import (
	"errors"
	"fmt"
)

// TransientError wraps a connection-level failure that provider adapters
// retry internally. It surfaces only after retries are exhausted.
type TransientError struct {
	Provider string
	Err      error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient: %v", e.Provider, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// RateLimitError reports upstream throttling that persisted past the maximum
// number of backoff attempts.
type RateLimitError struct {
	Provider string
	Attempts int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: rate limited after %d attempts", e.Provider, e.Attempts)
}

// AuthError reports a credential failure. It is fatal for the provider for
// the remainder of the batch and is never retried.
type AuthError struct {
	Provider string
	Err      error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: authentication failed: %v", e.Provider, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// StreamTimeoutError reports that the candle stream deadline elapsed before
// the minimum sample floor was reached. The symbol's HV fields stay absent.
type StreamTimeoutError struct {
	Symbol     string
	Received   int
	MinSamples int
}

func (e *StreamTimeoutError) Error() string {
	return fmt.Sprintf("stream timeout for %s: %d candles received, need at least %d",
		e.Symbol, e.Received, e.MinSamples)
}

// DataQualityError reports that the fraction of outright per-symbol failures
// breached the fail-fast threshold. The whole fetch pass is rejected.
type DataQualityError struct {
	Failed int
	Total  int
	Ratio  float64
}

func (e *DataQualityError) Error() string {
	return fmt.Sprintf("data quality floor breached: %d of %d symbols failed (threshold %.0f%%)",
		e.Failed, e.Total, e.Ratio*100)
}

// IsAuthError reports whether err is, or wraps, an AuthError.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsRateLimit reports whether err is, or wraps, a RateLimitError.
func IsRateLimit(err error) bool {
	var re *RateLimitError
	return errors.As(err, &re)
}

// IsStreamTimeout reports whether err is, or wraps, a StreamTimeoutError.
func IsStreamTimeout(err error) bool {
	var se *StreamTimeoutError
	return errors.As(err, &se)
}
