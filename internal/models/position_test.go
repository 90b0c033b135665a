package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProfitPct(t *testing.T) {
	long := Position{Direction: DirectionLong, AvgEntryPrice: 100}
	assert.InDelta(t, 2.0, long.ProfitPct(102), 1e-9)
	assert.InDelta(t, -1.5, long.ProfitPct(98.5), 1e-9)

	short := Position{Direction: DirectionShort, AvgEntryPrice: 100}
	assert.InDelta(t, 2.0, short.ProfitPct(98), 1e-9)
	assert.InDelta(t, -1.0, short.ProfitPct(101), 1e-9)

	// без средней цены доходности нет
	empty := Position{Direction: DirectionLong}
	assert.Zero(t, empty.ProfitPct(100))
}

func TestPnL(t *testing.T) {
	long := Position{Direction: DirectionLong, AvgEntryPrice: 100, Quantity: 2}
	assert.InDelta(t, 10.0, long.PnL(105), 1e-9)

	short := Position{Direction: DirectionShort, AvgEntryPrice: 100, Quantity: 2}
	assert.InDelta(t, 10.0, short.PnL(95), 1e-9)
	assert.InDelta(t, -4.0, short.PnL(102), 1e-9)
}

func TestEffectiveCloseTime(t *testing.T) {
	planned := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p := Position{PlannedCloseTime: planned}
	assert.Equal(t, planned, p.EffectiveCloseTime())

	extended := planned.Add(30 * time.Minute)
	p.ExtendedCloseTime = extended
	assert.Equal(t, extended, p.EffectiveCloseTime())
}

func TestAvgFillPrice(t *testing.T) {
	var plan EntryPlan

	assert.Zero(t, plan.AvgFillPrice())
	assert.Zero(t, plan.FilledCount())

	// маржа 30/30/40 при плече 1: количество = маржа / цена
	prices := []float64{99.8, 99.5, 100.0}
	margins := []float64{30, 30, 40}
	for i := range prices {
		plan.Tranches[i] = Tranche{
			Index:     i,
			Filled:    true,
			FillPrice: prices[i],
			Quantity:  margins[i] / prices[i],
		}
	}

	assert.Equal(t, 3, plan.FilledCount())
	assert.InDelta(t, 99.77, plan.AvgFillPrice(), 0.02)
}

func TestDirectionHelpers(t *testing.T) {
	assert.Equal(t, 1.0, DirectionLong.Sign())
	assert.Equal(t, -1.0, DirectionShort.Sign())
	assert.Equal(t, DirectionShort, DirectionLong.Opposite())
	assert.Equal(t, DirectionLong, DirectionShort.Opposite())
}
