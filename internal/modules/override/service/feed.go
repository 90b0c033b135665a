package service

import (
	"context"
	"math"
	"strconv"
	"sync"
	"time"
	"trade_executor/internal/models"
	"trade_executor/internal/modules/config"
	"trade_executor/pkg/logger"
)

// CandleSource — закрытые свечи в формате OKX: [ts, o, h, l, c, ...].
type CandleSource interface {
	Candles(ctx context.Context, symbol, bar string, limit int) ([][]string, error)
}

type cached struct {
	override models.Override
	active   bool
	at       time.Time
}

// Feed — детектор аварийного разворота: EMA fast против EMA slow по
// закрытым свечам. Ручной override (kill switch) всегда сильнее расчётного.
type Feed struct {
	cfg     *config.Config
	candles CandleSource

	mu     sync.Mutex
	cache  map[string]cached
	manual map[string]models.Override
}

func NewFeed(cfg *config.Config, candles CandleSource) *Feed {
	return &Feed{
		cfg:     cfg,
		candles: candles,
		cache:   make(map[string]cached),
		manual:  make(map[string]models.Override),
	}
}

// Current возвращает активный override для символа, если он есть.
func (f *Feed) Current(ctx context.Context, symbol string) (models.Override, bool) {
	f.mu.Lock()
	if o, ok := f.manual[symbol]; ok {
		f.mu.Unlock()
		return o, true
	}
	if c, ok := f.cache[symbol]; ok && time.Since(c.at) < f.cfg.Override.CacheTTL {
		f.mu.Unlock()
		return c.override, c.active
	}
	f.mu.Unlock()

	o, active := f.compute(ctx, symbol)

	f.mu.Lock()
	f.cache[symbol] = cached{override: o, active: active, at: time.Now()}
	f.mu.Unlock()
	return o, active
}

// SetManual включает ручной override; снимается через ClearManual.
func (f *Feed) SetManual(symbol string, o models.Override) {
	f.mu.Lock()
	f.manual[symbol] = o
	f.mu.Unlock()
	logger.Info("[OVERRIDE] %s: ручной override %s strength=%.2f", symbol, o.Direction, o.Strength)
}

func (f *Feed) ClearManual(symbol string) {
	f.mu.Lock()
	delete(f.manual, symbol)
	f.mu.Unlock()
}

// compute: тянем свечи, считаем расхождение EMA по ценам закрытия.
// Ошибки источника не эскалируем — нет данных, нет override.
func (f *Feed) compute(ctx context.Context, symbol string) (models.Override, bool) {
	cfg := f.cfg.Override

	raw, err := f.candles.Candles(ctx, symbol, cfg.Bar, cfg.Candles)
	if err != nil {
		logger.Error("[OVERRIDE] %s: свечи недоступны: %v", symbol, err)
		return models.Override{}, false
	}

	closes := closesOldestFirst(raw)
	if len(closes) < cfg.EMASlow {
		return models.Override{}, false
	}

	fast := emaSeries(closes, cfg.EMAFast)
	slow := emaSeries(closes, cfg.EMASlow)
	if slow <= 0 {
		return models.Override{}, false
	}

	gapPct := (fast - slow) / slow * 100
	if math.Abs(gapPct) < cfg.MinGapPct {
		return models.Override{}, false
	}

	dir := models.DirectionLong
	if gapPct < 0 {
		dir = models.DirectionShort
	}
	strength := math.Min(math.Abs(gapPct)/cfg.FullGapPct, 1.0)

	return models.Override{Direction: dir, Strength: strength}, true
}

// closesOldestFirst: OKX отдаёт свечи от новых к старым, close — поле 4.
func closesOldestFirst(raw [][]string) []float64 {
	closes := make([]float64, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		row := raw[i]
		if len(row) < 5 {
			continue
		}
		px, err := strconv.ParseFloat(row[4], 64)
		if err != nil || px <= 0 {
			continue
		}
		closes = append(closes, px)
	}
	return closes
}

// emaSeries — EMA по всему ряду, seed первым значением.
func emaSeries(closes []float64, period int) float64 {
	if len(closes) == 0 {
		return 0
	}
	if period <= 1 {
		return closes[len(closes)-1]
	}
	alpha := 2.0 / (float64(period) + 1)
	ema := closes[0]
	for _, px := range closes[1:] {
		ema = alpha*px + (1-alpha)*ema
	}
	return ema
}
