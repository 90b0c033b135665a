package service

import (
	"sync/atomic"
	"time"
)

// State — агрегированное состояние сервиса для health-ручек.
type State struct {
	ready     atomic.Bool
	startedAt time.Time

	feedConnected atomic.Bool
	lastPriceUnix atomic.Int64 // unix seconds последнего тика цены
}

func NewState() *State {
	s := &State{startedAt: time.Now()}
	s.ready.Store(false)
	return s
}

func (s *State) SetReady(v bool) { s.ready.Store(v) }
func (s *State) Ready() bool     { return s.ready.Load() }

func (s *State) SetFeedConnected(v bool) { s.feedConnected.Store(v) }
func (s *State) FeedConnected() bool     { return s.feedConnected.Load() }

func (s *State) TouchPrice(t time.Time) { s.lastPriceUnix.Store(t.Unix()) }
func (s *State) LastPrice() time.Time {
	u := s.lastPriceUnix.Load()
	if u == 0 {
		return time.Time{}
	}
	return time.Unix(u, 0)
}

func (s *State) Uptime() time.Duration { return time.Since(s.startedAt) }
