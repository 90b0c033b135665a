package service

import (
	"time"
	"trade_executor/internal/models"
	"trade_executor/internal/modules/config"
)

// exitDecision — вердикт одного тика мониторинга.
type exitDecision struct {
	Close  bool
	Reason models.CloseReason
	Extend bool // запросить разовое продление дедлайна
}

type exitInput struct {
	Position models.Position // снапшот с уже обновлённым MaxProfitPct
	Price    float64
	Override *models.Override // nil — индикатора нет
	Now      time.Time
	Cfg      config.ExitConfig
}

func closeWith(r models.CloseReason) exitDecision {
	return exitDecision{Close: true, Reason: r}
}

// decideExit — слои правил строго по приоритету, первый сработавший
// выигрывает. SL/TP идут первыми и не зависят ни от каких окон:
// гейтить их pre-close окном нельзя — это пропущенные стопы.
func decideExit(in exitInput) exitDecision {
	p := in.Position

	// --- 1) stop-loss / take-profit, безусловно ---
	if p.StopLossPrice > 0 {
		if p.Direction == models.DirectionLong && in.Price <= p.StopLossPrice {
			return closeWith(models.CloseStopLoss)
		}
		if p.Direction == models.DirectionShort && in.Price >= p.StopLossPrice {
			return closeWith(models.CloseStopLoss)
		}
	}
	if p.TakeProfitPrice > 0 {
		if p.Direction == models.DirectionLong && in.Price >= p.TakeProfitPrice {
			return closeWith(models.CloseTakeProfit)
		}
		if p.Direction == models.DirectionShort && in.Price <= p.TakeProfitPrice {
			return closeWith(models.CloseTakeProfit)
		}
	}

	// --- 2) emergency override: сильный разворот против позиции ---
	if in.Override != nil &&
		in.Override.Strength >= in.Cfg.OverrideMinStrength &&
		in.Override.Direction == p.Direction.Opposite() {
		return closeWith(models.CloseOverride)
	}

	if p.PlannedCloseTime.IsZero() {
		// защита ещё не выставлена (набор не завершён) — дальше нечего решать
		return exitDecision{}
	}

	profit := p.ProfitPct(in.Price)
	windowStart := p.PlannedCloseTime.Add(-in.Cfg.PreCloseWindow)

	// --- 3) тиры прибыли: активны только внутри pre-close окна ---
	if !in.Now.Before(windowStart) {
		drawdown := p.MaxProfitPct - profit

		switch {
		case profit >= in.Cfg.HighTierPct:
			// большая прибыль: фиксируем при малейшем откате от максимума
			if drawdown >= in.Cfg.HighTierDrawdownPct {
				return closeWith(models.CloseHighDrawdown)
			}
			return exitDecision{}

		case profit >= in.Cfg.MidTierPct:
			if drawdown >= in.Cfg.MidTierDrawdownPct {
				return closeWith(models.CloseMidDrawdown)
			}
			return exitDecision{}

		case profit >= in.Cfg.LowTierTakePct:
			// скромный плюс: забираем, пока не растаял
			return closeWith(models.CloseLowTierTake)
		}

		// продление уже выдано: выходим в ноль или по жёсткому дедлайну
		if !p.ExtendedCloseTime.IsZero() {
			if profit >= 0 {
				return closeWith(models.CloseBreakEven)
			}
			if !in.Now.Before(p.ExtendedCloseTime) {
				return closeWith(models.CloseExtendedStop)
			}
			return exitDecision{}
		}

		if !in.Now.Before(p.PlannedCloseTime) {
			// мелкий минус у дедлайна — единственное законное продление
			if profit < 0 && profit > -in.Cfg.ShallowLossPct {
				return exitDecision{Extend: true}
			}
			return closeWith(models.CloseDeadline)
		}

		return exitDecision{}
	}

	// --- 4) вне окна: только страховочный дедлайн ---
	if !in.Now.Before(p.EffectiveCloseTime()) {
		return closeWith(models.CloseDeadline)
	}
	return exitDecision{}
}
