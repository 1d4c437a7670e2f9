package stream

import (
	"math"
	"sort"

	"VolScreen/internal/domain/models"
)

// tradingDaysPerYear annualizes daily volatility.
const tradingDaysPerYear = 252

var hvWindows = []struct {
	days  int
	field models.Field
}{
	{20, models.FieldHV20},
	{30, models.FieldHV30},
	{90, models.FieldHV90},
	{252, models.FieldHV252},
}

// HistoricalVolatility computes annualized close-to-close volatility in
// percent over the trailing window of daily log returns. It reports ok=false
// when the candle series cannot fill the window.
func HistoricalVolatility(candles []models.Candle, window int) (float64, bool) {
	returns := logReturns(candles)
	if len(returns) < window {
		return 0, false
	}
	returns = returns[len(returns)-window:]

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var ss float64
	for _, r := range returns {
		d := r - mean
		ss += d * d
	}
	variance := ss / float64(len(returns)-1)
	return math.Sqrt(variance) * math.Sqrt(tradingDaysPerYear) * 100, true
}

// HVWindows derives every volatility window the candle series can support.
func HVWindows(candles []models.Candle) *models.PartialRecord {
	p := &models.PartialRecord{}
	for _, w := range hvWindows {
		hv, ok := HistoricalVolatility(candles, w.days)
		if !ok {
			continue
		}
		v := hv
		switch w.field {
		case models.FieldHV20:
			p.HV20 = &v
		case models.FieldHV30:
			p.HV30 = &v
		case models.FieldHV90:
			p.HV90 = &v
		case models.FieldHV252:
			p.HV252 = &v
		}
	}
	return p
}

func logReturns(candles []models.Candle) []float64 {
	sorted := make([]models.Candle, len(candles))
	copy(sorted, candles)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })

	returns := make([]float64, 0, len(sorted))
	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1].Close, sorted[i].Close
		if prev <= 0 || cur <= 0 {
			continue
		}
		returns = append(returns, math.Log(cur/prev))
	}
	return returns
}
