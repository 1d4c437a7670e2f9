package stream

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"VolScreen/internal/domain/models"
)

func dailyCandles(closes []float64) []models.Candle {
	base := time.Date(2026, time.January, 2, 0, 0, 0, 0, time.UTC)
	out := make([]models.Candle, len(closes))
	for i, c := range closes {
		out[i] = models.Candle{Symbol: "TEST", Time: base.AddDate(0, 0, i), Close: c}
	}
	return out
}

func TestHistoricalVolatilityConstantPriceIsZero(t *testing.T) {
	closes := make([]float64, 25)
	for i := range closes {
		closes[i] = 100
	}
	hv, ok := HistoricalVolatility(dailyCandles(closes), 20)
	require.True(t, ok)
	assert.Equal(t, 0.0, hv)
}

func TestHistoricalVolatilityKnownSeries(t *testing.T) {
	// Alternating +1%/-1% daily moves have a log-return stddev computable by
	// hand; check against the closed form.
	closes := make([]float64, 22)
	closes[0] = 100
	for i := 1; i < len(closes); i++ {
		if i%2 == 1 {
			closes[i] = closes[i-1] * 1.01
		} else {
			closes[i] = closes[i-1] * 0.99
		}
	}
	hv, ok := HistoricalVolatility(dailyCandles(closes), 20)
	require.True(t, ok)

	up := math.Log(1.01)
	down := math.Log(0.99)
	mean := (up + down) / 2
	variance := (10*math.Pow(up-mean, 2) + 10*math.Pow(down-mean, 2)) / 19
	want := math.Sqrt(variance) * math.Sqrt(252) * 100
	assert.InDelta(t, want, hv, 1e-9)
}

func TestHistoricalVolatilityDeterministic(t *testing.T) {
	closes := []float64{100, 101, 99.5, 102, 101.2, 103, 102.4, 104, 103.1,
		105, 104.2, 106, 105.5, 107, 106.1, 108, 107.3, 109, 108.2, 110, 109.4}
	a, ok := HistoricalVolatility(dailyCandles(closes), 20)
	require.True(t, ok)
	b, _ := HistoricalVolatility(dailyCandles(closes), 20)
	assert.Equal(t, a, b)
}

func TestHistoricalVolatilityInsufficientSamples(t *testing.T) {
	_, ok := HistoricalVolatility(dailyCandles([]float64{100, 101, 102}), 20)
	assert.False(t, ok)
}

func TestHistoricalVolatilitySortsOutOfOrderCandles(t *testing.T) {
	closes := []float64{100, 101, 99.5, 102, 101.2, 103, 102.4, 104, 103.1,
		105, 104.2, 106, 105.5, 107, 106.1, 108, 107.3, 109, 108.2, 110, 109.4}
	ordered := dailyCandles(closes)
	shuffled := make([]models.Candle, len(ordered))
	copy(shuffled, ordered)
	shuffled[0], shuffled[5] = shuffled[5], shuffled[0]
	shuffled[3], shuffled[17] = shuffled[17], shuffled[3]

	a, ok := HistoricalVolatility(ordered, 20)
	require.True(t, ok)
	b, ok := HistoricalVolatility(shuffled, 20)
	require.True(t, ok)
	assert.Equal(t, a, b)
}

func TestHVWindowsOnlyFillsSupportedWindows(t *testing.T) {
	closes := make([]float64, 40)
	closes[0] = 100
	for i := 1; i < len(closes); i++ {
		closes[i] = closes[i-1] * (1 + 0.001*float64(i%3))
	}
	p := HVWindows(dailyCandles(closes))
	assert.NotNil(t, p.HV20)
	assert.NotNil(t, p.HV30)
	assert.Nil(t, p.HV90)
	assert.Nil(t, p.HV252)
}
