package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"VolScreen/internal/usecase"
	xlogger "VolScreen/pkg/logger"
)

// ReportHandler serves the diagnostics endpoints: liveness and the last fetch
// pass outcome with recent warn/error log entries.
type ReportHandler struct {
	logger  *xlogger.Logger
	summary *usecase.SummaryHolder
}

func NewReportHandler(logger *xlogger.Logger, summary *usecase.SummaryHolder) *ReportHandler {
	return &ReportHandler{logger: logger, summary: summary}
}

func (h *ReportHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
	e.GET("/api/v1/report", h.Report)
}

func (h *ReportHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type reportResponse struct {
	LastRun   *usecase.RunSummary          `json:"last_run"`
	RecentLog []xlogger.AggregatedLogEntry `json:"recent_log,omitempty"`
}

func (h *ReportHandler) Report(c echo.Context) error {
	resp := reportResponse{LastRun: h.summary.Last()}
	if col := h.logger.Collector(); col != nil {
		resp.RecentLog = col.Snapshot()
	}
	if resp.LastRun == nil {
		return c.JSON(http.StatusServiceUnavailable, resp)
	}
	return c.JSON(http.StatusOK, resp)
}
