package service

import (
	"testing"
	"time"
	"trade_executor/internal/models"

	"github.com/stretchr/testify/assert"
)

var decideBase = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func baselineFixture() models.PriceBaseline {
	return models.PriceBaseline{
		P10: 99.0,
		P25: 99.5,
		P50: 100.0,
		P75: 100.5,
		P90: 101.0,
		Min: 98.8,
		Max: 101.2,
	}
}

func longInput(tranche int, price float64) trancheInput {
	return trancheInput{
		Tranche:        tranche,
		Direction:      models.DirectionLong,
		Price:          price,
		Baseline:       baselineFixture(),
		BaselineReady:  true,
		Now:            decideBase,
		Deadline:       decideBase.Add(15 * time.Minute),
		WarmupDeadline: decideBase.Add(90 * time.Second),
		MinSpacing:     3 * time.Minute,
		PullbackPct:    0.3,
	}
}

func TestDecideFillDeadlineWinsUnconditionally(t *testing.T) {
	in := longInput(0, 105.0) // цена хуже некуда
	in.Now = in.Deadline
	in.BaselineReady = false // даже без baseline

	dec := decideFill(in)
	assert.True(t, dec.Fill)
	assert.Equal(t, "DEADLINE", dec.Reason)
}

func TestDecideFillWarmupTimeoutOnlyFirstTranche(t *testing.T) {
	in := longInput(0, 100.0)
	in.BaselineReady = false
	in.Now = in.WarmupDeadline

	dec := decideFill(in)
	assert.True(t, dec.Fill)
	assert.Equal(t, "WARMUP_TIMEOUT", dec.Reason)

	// для второго транша warmup-форса нет
	in2 := longInput(1, 100.0)
	in2.BaselineReady = false
	in2.Now = in2.WarmupDeadline
	assert.False(t, decideFill(in2).Fill)
}

func TestDecideFillSpacingGate(t *testing.T) {
	in := longInput(1, 90.0) // цена сверхвыгодная
	in.PrevFillPrice = 100.0
	in.LastFillTime = decideBase.Add(-time.Minute) // но прошла всего минута

	assert.False(t, decideFill(in).Fill)

	in.LastFillTime = decideBase.Add(-3 * time.Minute)
	dec := decideFill(in)
	assert.True(t, dec.Fill)
	assert.Equal(t, "PULLBACK", dec.Reason)
}

func TestDecideFirstLong(t *testing.T) {
	cases := []struct {
		name   string
		price  float64
		revTo  bool
		fill   bool
		reason string
	}{
		{"p10 favorable", 98.9, false, true, "P10_FAVORABLE"},
		{"window break", 98.7, false, true, "WINDOW_BREAK"},
		{"reversal at p25", 99.4, true, true, "REVERSAL_CONFIRM"},
		{"no reversal at p25", 99.4, false, false, ""},
		{"runaway above p75", 100.6, false, true, "RUNAWAY_GUARD"},
		{"mid band waits", 100.0, false, false, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := longInput(0, tc.price)
			in.ReversalTick = tc.revTo
			dec := decideFill(in)
			assert.Equal(t, tc.fill, dec.Fill)
			if tc.fill {
				assert.Equal(t, tc.reason, dec.Reason)
			}
		})
	}
}

func TestDecideFirstShortMirrors(t *testing.T) {
	in := longInput(0, 101.1)
	in.Direction = models.DirectionShort

	dec := decideFill(in)
	assert.True(t, dec.Fill)
	assert.Equal(t, "P90_FAVORABLE", dec.Reason)

	in.Price = 99.4
	dec = decideFill(in)
	assert.True(t, dec.Fill)
	assert.Equal(t, "RUNAWAY_GUARD", dec.Reason)
}

func TestDecideSecondPullback(t *testing.T) {
	in := longInput(1, 99.7)
	in.PrevFillPrice = 100.0
	in.LastFillTime = decideBase.Add(-5 * time.Minute)

	// откат ровно 0.3% от первого филла
	dec := decideFill(in)
	assert.True(t, dec.Fill)
	assert.Equal(t, "PULLBACK", dec.Reason)

	// откат меньше порога и цена выше P25 — ждём
	in.Price = 99.9
	assert.False(t, decideFill(in).Fill)

	// цена в выгодной четверти окна берётся и без отката
	in.Price = 99.5
	dec = decideFill(in)
	assert.True(t, dec.Fill)
	assert.Equal(t, "BAND_FAVORABLE", dec.Reason)
}

func TestDecideThirdAtOrBetterAvg(t *testing.T) {
	in := longInput(2, 99.6)
	in.RunningAvg = 99.65
	in.LastFillTime = decideBase.Add(-5 * time.Minute)

	dec := decideFill(in)
	assert.True(t, dec.Fill)
	assert.Equal(t, "AT_OR_BETTER_AVG", dec.Reason)

	in.Price = 99.7
	assert.False(t, decideFill(in).Fill)

	// SHORT: не ниже средней
	in.Direction = models.DirectionShort
	assert.True(t, decideFill(in).Fill)
}
