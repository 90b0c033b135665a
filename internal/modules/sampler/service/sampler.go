package service

import (
	"context"
	"errors"
	"sync"
	"time"
	"trade_executor/internal/models"
	"trade_executor/internal/modules/config"
	"trade_executor/pkg/logger"
)

// ErrNotReady — в окне ещё мало сэмплов. Это не ошибка, а штатное
// состояние прогрева: вызывающий ждёт следующего тика.
var ErrNotReady = errors.New("sampler: baseline not ready")

// PriceFeed — источник текущей цены (OKX ticker либо фейк в тестах).
type PriceFeed interface {
	CurrentPrice(ctx context.Context, symbol string) (float64, error)
}

// Sampler держит скользящее окно цен одного символа.
// Окно едет, а не снимается один раз: baseline остаётся репрезентативным
// на всём горизонте набора позиции.
type Sampler struct {
	symbol string
	cfg    config.SamplerConfig
	feed   PriceFeed

	mu  sync.RWMutex
	buf []models.PriceSample

	cancel context.CancelFunc
	done   chan struct{}
}

func newSampler(symbol string, cfg config.SamplerConfig, feed PriceFeed) *Sampler {
	return &Sampler{
		symbol: symbol,
		cfg:    cfg,
		feed:   feed,
		done:   make(chan struct{}),
	}
}

func (s *Sampler) start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	go func() {
		defer close(s.done)

		// первый сэмпл сразу, не ждём тика
		s.poll(ctx)

		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.poll(ctx)
			}
		}
	}()
}

func (s *Sampler) stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

// poll: ошибка фида не валит цикл — логируем и пробуем на следующем тике.
func (s *Sampler) poll(ctx context.Context) {
	price, err := s.feed.CurrentPrice(ctx, s.symbol)
	if err != nil {
		logger.Error("[SAMPLER] %s: цена недоступна: %v", s.symbol, err)
		return
	}
	if price <= 0 {
		return
	}
	s.Observe(price, time.Now())
}

// Observe добавляет сэмпл и выталкивает устаревшие.
// Экспортирован: exit-монитор может подкармливать окно своими тиками.
func (s *Sampler) Observe(price float64, ts time.Time) {
	s.mu.Lock()
	s.buf = append(s.buf, models.PriceSample{Price: price, TS: ts})
	s.evictLocked(ts.Add(-s.cfg.Window))
	s.mu.Unlock()
}

func (s *Sampler) evictLocked(cutoff time.Time) {
	i := 0
	for i < len(s.buf) && s.buf[i].TS.Before(cutoff) {
		i++
	}
	if i > 0 {
		s.buf = append(s.buf[:0], s.buf[i:]...)
	}
}

// Baseline пересчитывает статистику по текущему окну.
// Окно едет и без новых сэмплов: мёртвый фид должен давать ErrNotReady,
// а не консервировать устаревший baseline.
func (s *Sampler) Baseline() (models.PriceBaseline, error) {
	s.mu.Lock()
	s.evictLocked(time.Now().Add(-s.cfg.Window))
	samples := make([]models.PriceSample, len(s.buf))
	copy(samples, s.buf)
	s.mu.Unlock()

	if len(samples) < s.cfg.MinSamples {
		return models.PriceBaseline{}, ErrNotReady
	}
	return computeBaseline(samples, s.cfg), nil
}

// Last — последний сэмпл окна (цена, время).
func (s *Sampler) Last() (models.PriceSample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.buf) == 0 {
		return models.PriceSample{}, false
	}
	return s.buf[len(s.buf)-1], true
}

// Прошлый и позапрошлый сэмплы — для проверки краткосрочного разворота.
func (s *Sampler) LastTwo() (prev, last models.PriceSample, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.buf) < 2 {
		return models.PriceSample{}, models.PriceSample{}, false
	}
	return s.buf[len(s.buf)-2], s.buf[len(s.buf)-1], true
}
