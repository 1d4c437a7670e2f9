package yahoo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"VolScreen/internal/domain/models"
	"VolScreen/internal/service/ratelimit"
	"VolScreen/pkg/logger"
)

func newSectorClient(url string) *Client {
	rc := ratelimit.New(ratelimit.WithDefaultBudget(1000, 1000))
	return New(url, 30, rc, logger.NewNop(), 5*time.Second).(*Client)
}

func TestOwnsDeclaresPriceReturnsSector(t *testing.T) {
	c := newSectorClient("http://unused")
	assert.Equal(t,
		[]models.Field{models.FieldPrice, models.FieldReturns, models.FieldSector},
		c.Owns())
}

func TestFetchSectorParsesAssetProfile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/AAPL", r.URL.Path)
		assert.Equal(t, "assetProfile", r.URL.Query().Get("modules"))
		w.Write([]byte(`{"quoteSummary":{"result":[{"assetProfile":{"sector":"Technology"}}]}}`))
	}))
	defer srv.Close()

	sector, err := newSectorClient(srv.URL).fetchSector(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "Technology", sector)
}

func TestFetchSectorEmptyForInstrumentsWithoutProfile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"quoteSummary":{"result":[]}}`))
	}))
	defer srv.Close()

	sector, err := newSectorClient(srv.URL).fetchSector(context.Background(), "SPY")
	require.NoError(t, err)
	assert.Empty(t, sector)
}

func TestFetchSectorErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newSectorClient(srv.URL).fetchSector(context.Background(), "NOPE")
	require.Error(t, err)
}
