package models

import "time"

type TrendDirection string

const (
	TrendUp   TrendDirection = "up"
	TrendDown TrendDirection = "down"
	TrendFlat TrendDirection = "flat"
)

// PriceSample — одно наблюдение цены. Живёт только в окне сэмплера.
type PriceSample struct {
	Price float64
	TS    time.Time
}

// PriceBaseline — статистика скользящего окна цен. Пересчитывается по
// требованию из текущего буфера, никогда не кешируется.
type PriceBaseline struct {
	P10, P25, P50, P75, P90 float64
	Min, Max                float64
	Mean                    float64
	VolatilityPct           float64

	TrendDirection TrendDirection
	TrendStrength  float64 // 0..1

	SampleCount int
	WindowStart time.Time
	WindowEnd   time.Time
}

// Override — внешний индикатор сильного разворота (emergency override).
type Override struct {
	Direction Direction
	Strength  float64 // 0..1
}
