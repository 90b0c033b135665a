package service

import (
	"context"
	"sync"
	"trade_executor/pkg/logger"
)

// Scheduler раздаёт по одному монитору на позицию. Watch идемпотентен:
// второй вызов для того же id ничего не запускает.
type Scheduler struct {
	monitor *Monitor

	mu     sync.Mutex
	active map[string]struct{}
}

func NewScheduler(monitor *Monitor) *Scheduler {
	return &Scheduler{
		monitor: monitor,
		active:  make(map[string]struct{}),
	}
}

func (s *Scheduler) Watch(ctx context.Context, positionID string) {
	s.mu.Lock()
	if _, running := s.active[positionID]; running {
		s.mu.Unlock()
		return
	}
	s.active[positionID] = struct{}{}
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.active, positionID)
			s.mu.Unlock()
		}()

		logger.Info("[EXIT] монитор запущен: %s", positionID)
		s.monitor.Run(ctx, positionID)
		logger.Info("[EXIT] монитор остановлен: %s", positionID)
	}()
}

func (s *Scheduler) Watching(positionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[positionID]
	return ok
}
