package usecase

import (
	"sync"
	"time"

	"VolScreen/internal/domain/models"
)

// RunSummary describes the outcome of one fetch pass.
type RunSummary struct {
	StartedAt  time.Time             `json:"started_at"`
	DurationMS int64                 `json:"duration_ms"`
	Total      int                   `json:"total"`
	Fetched    int                   `json:"fetched"`
	Failed     int                   `json:"failed"`
	Fallback   int                   `json:"fallback"`
	Stale      int                   `json:"stale"`
	Report     *models.FailureReport `json:"report,omitempty"`
	Error      string                `json:"error,omitempty"`
}

// Summarize builds a RunSummary from a FetchAll outcome.
func Summarize(start time.Time, records map[string]models.MarketRecord, report *models.FailureReport, err error) RunSummary {
	s := RunSummary{
		StartedAt:  start.UTC(),
		DurationMS: time.Since(start).Milliseconds(),
		Total:      report.Total,
		Fetched:    len(records),
		Failed:     report.Failed(),
		Report:     report,
	}
	for _, rec := range records {
		if rec.HasWarning(models.WarnFallback) {
			s.Fallback++
		}
		if rec.HasWarning(models.WarnStale) {
			s.Stale++
		}
	}
	if err != nil {
		s.Error = err.Error()
	}
	return s
}

// SummaryHolder keeps the most recent run summary for the diagnostics
// endpoint.
type SummaryHolder struct {
	mu   sync.RWMutex
	last *RunSummary
}

// NewSummaryHolder creates an empty holder.
func NewSummaryHolder() *SummaryHolder { return &SummaryHolder{} }

// Set stores the latest summary.
func (h *SummaryHolder) Set(s RunSummary) {
	h.mu.Lock()
	h.last = &s
	h.mu.Unlock()
}

// Last returns the most recent summary, or nil before the first pass.
func (h *SummaryHolder) Last() *RunSummary {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.last
}
