package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"VolScreen/internal/usecase"
	xlogger "VolScreen/pkg/logger"
)

func newTestServer(summary *usecase.SummaryHolder) *echo.Echo {
	e := echo.New()
	NewReportHandler(xlogger.NewNop(), summary).RegisterRoutes(e)
	return e
}

func TestHealthEndpoint(t *testing.T) {
	e := newTestServer(usecase.NewSummaryHolder())

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestReportBeforeFirstRun(t *testing.T) {
	e := newTestServer(usecase.NewSummaryHolder())

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/report", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestReportReturnsLastRun(t *testing.T) {
	holder := usecase.NewSummaryHolder()
	holder.Set(usecase.RunSummary{
		StartedAt: time.Date(2026, time.March, 2, 14, 0, 0, 0, time.UTC),
		Total:     10,
		Fetched:   9,
		Failed:    1,
	})
	e := newTestServer(holder)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/report", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp reportResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.LastRun)
	assert.Equal(t, 9, resp.LastRun.Fetched)
	assert.Equal(t, 1, resp.LastRun.Failed)
}
