package models

import "time"

type PositionStatus string

const (
	StatusBuilding PositionStatus = "building"
	StatusOpen     PositionStatus = "open"
	StatusClosed   PositionStatus = "closed"
)

type PlanStatus string

const (
	PlanInProgress PlanStatus = "in_progress"
	PlanComplete   PlanStatus = "complete"
	PlanAborted    PlanStatus = "aborted"
)

// CloseReason — почему позиция закрыта. Пишется в леджер всегда.
type CloseReason string

const (
	CloseStopLoss      CloseReason = "STOP_LOSS"
	CloseTakeProfit    CloseReason = "TAKE_PROFIT"
	CloseOverride      CloseReason = "EMERGENCY_OVERRIDE"
	CloseHighDrawdown  CloseReason = "HIGH_PROFIT_DRAWDOWN"
	CloseMidDrawdown   CloseReason = "MID_PROFIT_DRAWDOWN"
	CloseLowTierTake   CloseReason = "LOW_TIER_TAKE"
	CloseBreakEven     CloseReason = "BREAK_EVEN_RECOVERY"
	CloseDeadline      CloseReason = "DEADLINE"
	CloseExtendedStop  CloseReason = "EXTENDED_DEADLINE"
	CloseEntryAborted  CloseReason = "ENTRY_ABORTED"
	CloseManual        CloseReason = "MANUAL"
)

// Tranche — один из трёх частичных входов, из которых собирается позиция.
type Tranche struct {
	Index      int     // 0..2
	Ratio      float64 // доля от TotalMargin, сумма по плану = 1.0
	Filled     bool
	FillPrice  float64
	FillTime   time.Time
	Quantity   float64
	Margin     float64
	FillReason string
}

// EntryPlan живёт только внутри EntryScheduler на время набора.
type EntryPlan struct {
	Symbol     string
	Direction  Direction
	SignalTime time.Time
	Tranches   [3]Tranche
	Status     PlanStatus
}

func (p *EntryPlan) FilledCount() int {
	n := 0
	for _, t := range p.Tranches {
		if t.Filled {
			n++
		}
	}
	return n
}

// AvgFillPrice — средняя цена входа, взвешенная по количеству.
func (p *EntryPlan) AvgFillPrice() float64 {
	var qty, notional float64
	for _, t := range p.Tranches {
		if !t.Filled {
			continue
		}
		qty += t.Quantity
		notional += t.Quantity * t.FillPrice
	}
	if qty == 0 {
		return 0
	}
	return notional / qty
}

// Position — персистентный агрегат. Инвариант: не больше одной незакрытой
// позиции на (symbol, direction); обеспечивается леджером на создании.
type Position struct {
	ID        string
	Symbol    string
	Direction Direction
	Status    PositionStatus

	AvgEntryPrice float64
	Quantity      float64
	Margin        float64
	Leverage      int

	StopLossPrice   float64
	TakeProfitPrice float64

	EntrySignalTime   time.Time
	PlannedCloseTime  time.Time
	ExtendedCloseTime time.Time // zero, пока продление не выдано

	MaxProfitPct   float64
	MaxProfitPrice float64

	CloseReason CloseReason
	ClosePrice  float64
	CloseTime   time.Time

	SignalScore      float64
	SignalComponents map[string]float64

	UpdatedAt time.Time
	Version   int64 // optimistic concurrency
}

func (p *Position) IsClosed() bool { return p.Status == StatusClosed }

func (p *Position) Key() PosKey {
	return PosKey{Symbol: p.Symbol, Direction: p.Direction}
}

// ProfitPct — текущая доходность в % движения цены (без плеча), со знаком
// в пользу позиции: положительная = в плюс.
func (p *Position) ProfitPct(price float64) float64 {
	if p.AvgEntryPrice <= 0 {
		return 0
	}
	return p.Direction.Sign() * (price - p.AvgEntryPrice) / p.AvgEntryPrice * 100
}

// PnL — реализованный результат в валюте маржи при закрытии по price.
func (p *Position) PnL(price float64) float64 {
	return p.Direction.Sign() * (price - p.AvgEntryPrice) * p.Quantity
}

// EffectiveCloseTime — дедлайн с учётом разового продления.
func (p *Position) EffectiveCloseTime() time.Time {
	if !p.ExtendedCloseTime.IsZero() {
		return p.ExtendedCloseTime
	}
	return p.PlannedCloseTime
}
