package service

import (
	"time"
	"trade_executor/internal/models"
)

// fillDecision — вердикт по траншу на одном тике опроса.
type fillDecision struct {
	Fill   bool
	Reason string
}

type trancheInput struct {
	Tranche   int // 0..2
	Direction models.Direction

	Price         float64
	Baseline      models.PriceBaseline
	BaselineReady bool

	// короткий разворот в пользу позиции (подтверждение моментума)
	ReversalTick bool

	Now            time.Time
	Deadline       time.Time // абсолютный дедлайн транша
	WarmupDeadline time.Time // только транш 0: ожидание baseline

	PrevFillPrice float64 // цена транша 1 (для транша 2)
	RunningAvg    float64 // средняя траншей 1-2 (для транша 3)
	LastFillTime  time.Time
	MinSpacing    time.Duration
	PullbackPct   float64
}

// decideFill — чистая функция: вся политика входа в одном месте.
// Дедлайны проверяются первыми: план обязан завершиться внутри горизонта.
func decideFill(in trancheInput) fillDecision {
	// 1) абсолютный дедлайн транша — заливаемся по рынку без условий
	if !in.Now.Before(in.Deadline) {
		return fillDecision{Fill: true, Reason: "DEADLINE"}
	}

	// 2) baseline не готов: транш 0 ждёт до warmup-дедлайна, потом входит
	if !in.BaselineReady {
		if in.Tranche == 0 && !in.WarmupDeadline.IsZero() && !in.Now.Before(in.WarmupDeadline) {
			return fillDecision{Fill: true, Reason: "WARMUP_TIMEOUT"}
		}
		return fillDecision{}
	}

	// 3) пауза между траншами: ранний вход не раньше MinSpacing после
	// предыдущего филла (дедлайн выше её игнорирует)
	if in.Tranche > 0 && !in.LastFillTime.IsZero() &&
		in.Now.Sub(in.LastFillTime) < in.MinSpacing {
		return fillDecision{}
	}

	switch in.Tranche {
	case 0:
		return decideFirst(in)
	case 1:
		return decideSecond(in)
	default:
		return decideThird(in)
	}
}

func decideFirst(in trancheInput) fillDecision {
	b := in.Baseline

	if in.Direction == models.DirectionLong {
		// пробой минимума окна в нашу сторону
		if in.Price < b.Min {
			return fillDecision{Fill: true, Reason: "WINDOW_BREAK"}
		}
		// экстремально выгодный перцентиль
		if in.Price <= b.P10 {
			return fillDecision{Fill: true, Reason: "P10_FAVORABLE"}
		}
		// отскок от низа окна, подтверждённый моментумом
		if in.ReversalTick && in.Price <= b.P25 {
			return fillDecision{Fill: true, Reason: "REVERSAL_CONFIRM"}
		}
		// цена убегает против нас — входим, пока slippage не вырос
		if in.Price >= b.P75 {
			return fillDecision{Fill: true, Reason: "RUNAWAY_GUARD"}
		}
		return fillDecision{}
	}

	// SHORT зеркально
	if in.Price > b.Max {
		return fillDecision{Fill: true, Reason: "WINDOW_BREAK"}
	}
	if in.Price >= b.P90 {
		return fillDecision{Fill: true, Reason: "P90_FAVORABLE"}
	}
	if in.ReversalTick && in.Price >= b.P75 {
		return fillDecision{Fill: true, Reason: "REVERSAL_CONFIRM"}
	}
	if in.Price <= b.P25 {
		return fillDecision{Fill: true, Reason: "RUNAWAY_GUARD"}
	}
	return fillDecision{}
}

func decideSecond(in trancheInput) fillDecision {
	b := in.Baseline
	pullback := in.PrevFillPrice * in.PullbackPct / 100

	if in.Direction == models.DirectionLong {
		if in.PrevFillPrice > 0 && in.Price <= in.PrevFillPrice-pullback {
			return fillDecision{Fill: true, Reason: "PULLBACK"}
		}
		if in.Price <= b.P25 {
			return fillDecision{Fill: true, Reason: "BAND_FAVORABLE"}
		}
		return fillDecision{}
	}

	if in.PrevFillPrice > 0 && in.Price >= in.PrevFillPrice+pullback {
		return fillDecision{Fill: true, Reason: "PULLBACK"}
	}
	if in.Price >= b.P75 {
		return fillDecision{Fill: true, Reason: "BAND_FAVORABLE"}
	}
	return fillDecision{}
}

// Транш 3: не хуже средней первых двух.
func decideThird(in trancheInput) fillDecision {
	if in.RunningAvg <= 0 {
		return fillDecision{}
	}
	if in.Direction == models.DirectionLong {
		if in.Price <= in.RunningAvg {
			return fillDecision{Fill: true, Reason: "AT_OR_BETTER_AVG"}
		}
		return fillDecision{}
	}
	if in.Price >= in.RunningAvg {
		return fillDecision{Fill: true, Reason: "AT_OR_BETTER_AVG"}
	}
	return fillDecision{}
}
