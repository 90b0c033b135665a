package service

import (
	"math"
	"sort"
	"trade_executor/internal/models"
	"trade_executor/internal/modules/config"
)

func computeBaseline(samples []models.PriceSample, cfg config.SamplerConfig) models.PriceBaseline {
	prices := make([]float64, len(samples))
	for i, s := range samples {
		prices[i] = s.Price
	}
	sort.Float64s(prices)

	var sum float64
	for _, p := range prices {
		sum += p
	}
	mean := sum / float64(len(prices))

	var variance float64
	for _, p := range prices {
		variance += (p - mean) * (p - mean)
	}
	variance /= float64(len(prices))

	volatilityPct := 0.0
	if mean > 0 {
		volatilityPct = math.Sqrt(variance) / mean * 100
	}

	b := models.PriceBaseline{
		P10:           percentile(prices, 0.10),
		P25:           percentile(prices, 0.25),
		P50:           percentile(prices, 0.50),
		P75:           percentile(prices, 0.75),
		P90:           percentile(prices, 0.90),
		Min:           prices[0],
		Max:           prices[len(prices)-1],
		Mean:          mean,
		VolatilityPct: volatilityPct,
		SampleCount:   len(samples),
		WindowStart:   samples[0].TS,
		WindowEnd:     samples[len(samples)-1].TS,
	}

	b.TrendDirection, b.TrendStrength = trend(samples, cfg)
	return b
}

// trend: процентное изменение первый-vs-последний сэмпл окна.
// |Δ| < FlatTrendPct => flat, иначе up/down с силой min(|Δ|/FullTrendPct, 1).
func trend(samples []models.PriceSample, cfg config.SamplerConfig) (models.TrendDirection, float64) {
	first := samples[0].Price
	last := samples[len(samples)-1].Price
	if first <= 0 {
		return models.TrendFlat, 0
	}

	deltaPct := (last - first) / first * 100
	if math.Abs(deltaPct) < cfg.FlatTrendPct {
		return models.TrendFlat, 0
	}

	strength := math.Min(math.Abs(deltaPct)/cfg.FullTrendPct, 1.0)
	if deltaPct > 0 {
		return models.TrendUp, strength
	}
	return models.TrendDown, strength
}

// percentile — линейная интерполяция по отсортированному срезу.
func percentile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}

	pos := q * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}
