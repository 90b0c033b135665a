package service

import (
	"context"
	"sync"
	"trade_executor/internal/modules/config"
	"trade_executor/pkg/logger"
)

// Registry — refcount по символам. Один сэмплер на символ, сколько бы
// задач его ни слушало; цикл гаснет, когда отпустил последний владелец.
type Registry struct {
	cfg  config.SamplerConfig
	feed PriceFeed

	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	sampler *Sampler
	refs    int
}

func NewRegistry(cfg *config.Config, feed PriceFeed) *Registry {
	return &Registry{
		cfg:     cfg.Sampler,
		feed:    feed,
		entries: make(map[string]*entry),
	}
}

// Acquire стартует цикл на первом владельце и отдаёт общий сэмплер.
func (r *Registry) Acquire(ctx context.Context, symbol string) *Sampler {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[symbol]
	if !ok {
		e = &entry{sampler: newSampler(symbol, r.cfg, r.feed)}
		r.entries[symbol] = e
		// сэмплер общий: отмена контекста первого владельца не должна
		// гасить окно для остальных — циклом управляет только refcount
		e.sampler.start(context.WithoutCancel(ctx))
		logger.Info("[SAMPLER] %s: окно запущено", symbol)
	}
	e.refs++
	return e.sampler
}

// Release гасит цикл, если владельцев не осталось.
func (r *Registry) Release(symbol string) {
	r.mu.Lock()
	e, ok := r.entries[symbol]
	if ok {
		e.refs--
		if e.refs <= 0 {
			delete(r.entries, symbol)
		}
	}
	r.mu.Unlock()

	if ok && e.refs <= 0 {
		// stop вне мьютекса: ждём завершения горутины
		e.sampler.stop()
		logger.Info("[SAMPLER] %s: окно остановлено", symbol)
	}
}

func (r *Registry) Refs(symbol string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[symbol]; ok {
		return e.refs
	}
	return 0
}
