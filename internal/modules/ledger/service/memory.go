package service

import (
	"context"
	"sync"
	"time"
	"trade_executor/internal/models"
)

// Memory — леджер в памяти: paper-режим и тесты.
// Семантика транзакций та же, что у Pg: все мутации под одним мьютексом.
type Memory struct {
	mu        sync.Mutex
	balance   float64
	positions map[string]*models.Position
	tranches  map[string][]models.Tranche
}

func NewMemory(startBalance float64) *Memory {
	return &Memory{
		balance:   startBalance,
		positions: make(map[string]*models.Position),
		tranches:  make(map[string][]models.Tranche),
	}
}

func (m *Memory) CreatePosition(ctx context.Context, pos *models.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.positions {
		if p.Symbol == pos.Symbol && p.Direction == pos.Direction && !p.IsClosed() {
			return ErrDuplicatePosition
		}
	}

	cp := *pos
	cp.Status = models.StatusBuilding
	cp.UpdatedAt = time.Now()
	m.positions[cp.ID] = &cp
	return nil
}

func (m *Memory) AppendTrancheFill(ctx context.Context, positionID string, t models.Tranche) (*models.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.positions[positionID]
	if !ok {
		return nil, ErrNotFound
	}
	if p.IsClosed() {
		return nil, ErrAlreadyClosed
	}
	if m.balance < t.Margin {
		return nil, ErrInsufficientMargin
	}

	// средняя цена, взвешенная по количеству
	notional := p.AvgEntryPrice*p.Quantity + t.FillPrice*t.Quantity
	p.Quantity += t.Quantity
	if p.Quantity > 0 {
		p.AvgEntryPrice = notional / p.Quantity
	}
	p.Margin += t.Margin
	p.UpdatedAt = time.Now()
	p.Version++

	m.balance -= t.Margin
	m.tranches[positionID] = append(m.tranches[positionID], t)

	cp := *p
	return &cp, nil
}

func (m *Memory) SetProtection(ctx context.Context, positionID string, sl, tp float64, plannedClose time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.positions[positionID]
	if !ok {
		return ErrNotFound
	}
	p.StopLossPrice = sl
	p.TakeProfitPrice = tp
	p.PlannedCloseTime = plannedClose
	p.UpdatedAt = time.Now()
	p.Version++
	return nil
}

func (m *Memory) TransitionStatus(ctx context.Context, positionID string, from, to models.PositionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.positions[positionID]
	if !ok {
		return ErrNotFound
	}
	if p.Status != from {
		return ErrConflict
	}
	p.Status = to
	p.UpdatedAt = time.Now()
	p.Version++
	return nil
}

func (m *Memory) RecordClose(ctx context.Context, positionID string, reason models.CloseReason, price float64, now time.Time) (*models.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.positions[positionID]
	if !ok {
		return nil, ErrNotFound
	}
	// check-and-set: второй вызов не проводит деньги второй раз
	if p.IsClosed() {
		return nil, ErrAlreadyClosed
	}

	p.Status = models.StatusClosed
	p.CloseReason = reason
	p.ClosePrice = price
	p.CloseTime = now
	p.UpdatedAt = now
	p.Version++

	m.balance += p.Margin + p.PnL(price)

	cp := *p
	return &cp, nil
}

func (m *Memory) UpdateMaxProfit(ctx context.Context, positionID string, pct, price float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.positions[positionID]
	if !ok {
		return ErrNotFound
	}
	if pct > p.MaxProfitPct {
		p.MaxProfitPct = pct
		p.MaxProfitPrice = price
		p.UpdatedAt = time.Now()
		p.Version++
	}
	return nil
}

func (m *Memory) ExtendCloseTime(ctx context.Context, positionID string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.positions[positionID]
	if !ok {
		return ErrNotFound
	}
	if p.IsClosed() || !p.ExtendedCloseTime.IsZero() {
		return ErrAlreadyExtended
	}
	p.ExtendedCloseTime = until
	p.UpdatedAt = time.Now()
	p.Version++
	return nil
}

func (m *Memory) GetPosition(ctx context.Context, positionID string) (*models.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.positions[positionID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *Memory) GetOpenPositions(ctx context.Context) ([]*models.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*models.Position, 0, len(m.positions))
	for _, p := range m.positions {
		if !p.IsClosed() {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *Memory) HasActive(ctx context.Context, symbol string, direction models.Direction) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.positions {
		if p.Symbol == symbol && p.Direction == direction && !p.IsClosed() {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) Balance(ctx context.Context) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balance, nil
}

func (m *Memory) Tranches(positionID string) []models.Tranche {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Tranche, len(m.tranches[positionID]))
	copy(out, m.tranches[positionID])
	return out
}
