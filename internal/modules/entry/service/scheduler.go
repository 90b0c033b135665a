package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
	"trade_executor/internal/helper"
	"trade_executor/internal/metrics"
	"trade_executor/internal/models"
	"trade_executor/internal/modules/config"
	ledgersvc "trade_executor/internal/modules/ledger/service"
	samplersvc "trade_executor/internal/modules/sampler/service"
	"trade_executor/internal/notify"
	"trade_executor/pkg/logger"

	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
)

var (
	// ErrDuplicateSignal — по (symbol, direction) уже строится/открыта позиция.
	ErrDuplicateSignal = errors.New("entry: duplicate signal")
	// ErrNoPrice — за весь горизонт не удалось получить ни одной цены.
	ErrNoPrice = errors.New("entry: price unavailable")
)

// OrderGateway — исполнение ордеров на бирже (или paper-заглушка).
type OrderGateway interface {
	Place(ctx context.Context, symbol string, direction models.Direction, quantity, priceHint float64) (models.Fill, error)
	Close(ctx context.Context, symbol string, direction models.Direction, quantity float64) (models.Fill, error)
}

// Result — итог плана входа для вызывающего.
type Result struct {
	PositionID string
	AvgPrice   float64
	Quantity   float64
}

// PlanError — терминальная ошибка плана с отчётом о частичном наборе.
type PlanError struct {
	PositionID  string
	FilledCount int
	AvgPrice    float64
	Err         error
}

func (e *PlanError) Error() string {
	return fmt.Sprintf("entry plan failed: filled=%d avg=%.6f: %v", e.FilledCount, e.AvgPrice, e.Err)
}

func (e *PlanError) Unwrap() error { return e.Err }

// Scheduler набирает позицию тремя траншами внутри жёсткого горизонта.
type Scheduler struct {
	cfg      *config.Config
	registry *samplersvc.Registry
	ledger   ledgersvc.Ledger
	gw       OrderGateway
	notifier notify.Notifier
}

func NewScheduler(
	cfg *config.Config,
	registry *samplersvc.Registry,
	ldg ledgersvc.Ledger,
	gw OrderGateway,
	n notify.Notifier,
) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		registry: registry,
		ledger:   ldg,
		gw:       gw,
		notifier: n,
	}
}

// Execute ведёт план целиком: регистрация позиции, три транша, защита.
// Ровно одна позиция на сигнал; гонка дубликатов отбивается леджером.
func (s *Scheduler) Execute(ctx context.Context, sig models.Signal) (*Result, error) {
	span := opentracing.StartSpan("entry.execute")
	span.SetTag("symbol", sig.Symbol)
	span.SetTag("direction", string(sig.Direction))
	defer span.Finish()

	if err := validateSignal(sig); err != nil {
		return nil, err
	}
	if err := validateRatios(s.cfg.Entry.TrancheRatios); err != nil {
		return nil, err
	}

	pos := &models.Position{
		ID:               uuid.NewString(),
		Symbol:           sig.Symbol,
		Direction:        sig.Direction,
		Leverage:         sig.Leverage,
		EntrySignalTime:  sig.IssuedAt,
		SignalScore:      sig.Score,
		SignalComponents: sig.Components,
	}

	if err := s.ledger.CreatePosition(ctx, pos); err != nil {
		if errors.Is(err, ledgersvc.ErrDuplicatePosition) {
			metrics.PlansCompleted.WithLabelValues("rejected").Inc()
			return nil, ErrDuplicateSignal
		}
		return nil, err
	}

	smp := s.registry.Acquire(ctx, sig.Symbol)
	defer s.registry.Release(sig.Symbol)

	plan := &models.EntryPlan{
		Symbol:     sig.Symbol,
		Direction:  sig.Direction,
		SignalTime: sig.IssuedAt,
		Status:     models.PlanInProgress,
	}
	for i := range plan.Tranches {
		plan.Tranches[i].Index = i
		plan.Tranches[i].Ratio = s.cfg.Entry.TrancheRatios[i]
	}

	for i := range plan.Tranches {
		if err := s.runTranche(ctx, sig, pos.ID, plan, i, smp); err != nil {
			return nil, s.abort(ctx, pos.ID, plan, err)
		}
	}

	plan.Status = models.PlanComplete
	avg := plan.AvgFillPrice()

	if err := s.protect(ctx, pos.ID, sig, avg); err != nil {
		return nil, s.abort(ctx, pos.ID, plan, err)
	}

	metrics.PlansCompleted.WithLabelValues("complete").Inc()
	s.notifier.Sendf("✅ [%s] Позиция набрана %s | avg=%.6f qty=%.4f lev=%dx score=%.1f",
		sig.Symbol, sig.Direction, avg, s.totalQuantity(plan), sig.Leverage, sig.Score)

	var qty float64
	for _, t := range plan.Tranches {
		qty += t.Quantity
	}
	return &Result{PositionID: pos.ID, AvgPrice: avg, Quantity: qty}, nil
}

// runTranche крутит опрос до филла или дедлайна транша.
func (s *Scheduler) runTranche(
	ctx context.Context,
	sig models.Signal,
	positionID string,
	plan *models.EntryPlan,
	idx int,
	smp *samplersvc.Sampler,
) error {
	deadline := s.cfg.Entry.Deadline(sig.IssuedAt, idx)
	warmup := sig.IssuedAt.Add(s.cfg.Entry.WarmupTimeout)
	hardStop := sig.IssuedAt.Add(s.cfg.Entry.TotalDeadline)

	ticker := time.NewTicker(s.cfg.Entry.PollInterval)
	defer ticker.Stop()

	for {
		now := time.Now()

		last, havePx := smp.Last()
		if !havePx {
			// цены нет вообще: после полного горизонта план мёртв
			if now.After(hardStop) {
				return ErrNoPrice
			}
		} else {
			dec := decideFill(s.buildInput(sig, plan, idx, smp, last.Price, now, deadline, warmup))
			if dec.Fill {
				return s.fillTranche(ctx, sig, positionID, plan, idx, last.Price, dec.Reason)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) buildInput(
	sig models.Signal,
	plan *models.EntryPlan,
	idx int,
	smp *samplersvc.Sampler,
	price float64,
	now, deadline, warmup time.Time,
) trancheInput {
	in := trancheInput{
		Tranche:        idx,
		Direction:      sig.Direction,
		Price:          price,
		Now:            now,
		Deadline:       deadline,
		WarmupDeadline: warmup,
		MinSpacing:     s.cfg.Entry.MinSpacing,
		PullbackPct:    s.cfg.Entry.PullbackPct,
	}

	if b, err := smp.Baseline(); err == nil {
		in.Baseline = b
		in.BaselineReady = true
	}

	if prev, last, ok := smp.LastTwo(); ok {
		if sig.Direction == models.DirectionLong {
			in.ReversalTick = last.Price > prev.Price
		} else {
			in.ReversalTick = last.Price < prev.Price
		}
	}

	if idx > 0 {
		in.PrevFillPrice = plan.Tranches[0].FillPrice
		in.LastFillTime = plan.Tranches[idx-1].FillTime
	}
	if idx == 2 {
		in.RunningAvg = runningAvg(plan.Tranches[0], plan.Tranches[1])
	}
	return in
}

func runningAvg(a, b models.Tranche) float64 {
	qty := a.Quantity + b.Quantity
	if qty <= 0 {
		return 0
	}
	return (a.FillPrice*a.Quantity + b.FillPrice*b.Quantity) / qty
}

// fillTranche: ордер с ретраями, затем транзакционная запись в леджер.
func (s *Scheduler) fillTranche(
	ctx context.Context,
	sig models.Signal,
	positionID string,
	plan *models.EntryPlan,
	idx int,
	price float64,
	reason string,
) error {
	margin := sig.TotalMargin * s.cfg.Entry.TrancheRatios[idx]
	quantity := helper.RoundToLot(margin*float64(sig.Leverage)/price, s.cfg.OKX.LotStep)
	if quantity <= 0 {
		return fmt.Errorf("tranche %d: quantity below lot step", idx+1)
	}

	var (
		fill models.Fill
		err  error
	)
	for attempt := 0; attempt <= s.cfg.Entry.OrderRetries; attempt++ {
		fill, err = s.gw.Place(ctx, sig.Symbol, sig.Direction, quantity, price)
		if err == nil {
			break
		}
		logger.Error("[ENTRY] %s транш %d: ордер не прошёл (попытка %d): %v",
			sig.Symbol, idx+1, attempt+1, err)
		if attempt == s.cfg.Entry.OrderRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	if err != nil {
		return fmt.Errorf("tranche %d order: %w", idx+1, err)
	}

	t := models.Tranche{
		Index:      idx,
		Ratio:      s.cfg.Entry.TrancheRatios[idx],
		Filled:     true,
		FillPrice:  fill.Price,
		FillTime:   time.Now(),
		Quantity:   fill.Quantity,
		Margin:     margin,
		FillReason: reason,
	}

	// ErrConflict — гонка версий, повторяем сразу
	for {
		_, err = s.ledger.AppendTrancheFill(ctx, positionID, t)
		if !errors.Is(err, ledgersvc.ErrConflict) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("tranche %d ledger: %w", idx+1, err)
	}

	plan.Tranches[idx] = t
	metrics.TrancheFills.WithLabelValues(reason).Inc()
	logger.Info("[ENTRY] %s транш %d/3 исполнен @ %.6f (%s)", sig.Symbol, idx+1, fill.Price, reason)
	return nil
}

// protect: SL/TP от средней цены, дедлайн удержания по score, статус open.
func (s *Scheduler) protect(ctx context.Context, positionID string, sig models.Signal, avg float64) error {
	slOff := avg * s.cfg.Entry.StopLossPct / 100
	tpOff := avg * s.cfg.Entry.TakeProfitPct / 100

	tick := s.cfg.OKX.TickSize
	var sl, tp float64
	if sig.Direction == models.DirectionLong {
		sl = helper.RoundDownToTick(avg-slOff, tick)
		tp = helper.RoundUpToTick(avg+tpOff, tick)
	} else {
		sl = helper.RoundUpToTick(avg+slOff, tick)
		tp = helper.RoundDownToTick(avg-tpOff, tick)
	}

	plannedClose := time.Now().Add(s.cfg.Entry.PlannedHold(sig.Score))

	if err := s.ledger.SetProtection(ctx, positionID, sl, tp, plannedClose); err != nil {
		return err
	}
	return s.ledger.TransitionStatus(ctx, positionID, models.StatusBuilding, models.StatusOpen)
}

// abort: ни одного филла — снимаем позицию и освобождаем слот уникальности;
// частичный набор оставляем в building, о нём решает вызывающий.
func (s *Scheduler) abort(ctx context.Context, positionID string, plan *models.EntryPlan, cause error) error {
	// план часто гибнет от отмены контекста (shutdown) — финальные записи
	// в леджер обязаны пройти, иначе позиция останется без защиты
	ctx = context.WithoutCancel(ctx)

	plan.Status = models.PlanAborted
	metrics.PlansCompleted.WithLabelValues("aborted").Inc()

	filled := plan.FilledCount()
	avg := plan.AvgFillPrice()

	if filled == 0 {
		if _, err := s.ledger.RecordClose(ctx, positionID, models.CloseEntryAborted, 0, time.Now()); err != nil &&
			!errors.Is(err, ledgersvc.ErrAlreadyClosed) {
			logger.Error("[ENTRY] abort close %s: %v", positionID, err)
		}
	} else {
		// частичная позиция должна остаться под защитой и дедлайном
		if err := s.protectShortHold(ctx, positionID, plan.Direction, avg); err != nil {
			logger.Error("[ENTRY] abort protect %s: %v", positionID, err)
		}
	}

	s.notifier.Sendf("❗️ [%s] План входа прерван: траншей=%d avg=%.6f: %v",
		plan.Symbol, filled, avg, cause)

	return &PlanError{
		PositionID:  positionID,
		FilledCount: filled,
		AvgPrice:    avg,
		Err:         cause,
	}
}

func (s *Scheduler) protectShortHold(ctx context.Context, positionID string, direction models.Direction, avg float64) error {
	slOff := avg * s.cfg.Entry.StopLossPct / 100
	tpOff := avg * s.cfg.Entry.TakeProfitPct / 100

	var sl, tp float64
	if direction == models.DirectionLong {
		sl, tp = avg-slOff, avg+tpOff
	} else {
		sl, tp = avg+slOff, avg-tpOff
	}
	// частичной позиции короткое удержание: сигналу уже не доверяем
	return s.ledger.SetProtection(ctx, positionID, sl, tp, time.Now().Add(s.cfg.Entry.HoldShort))
}

// ProtectResumed ставит защиту позиции, подхваченной после рестарта без
// SL/TP и дедлайна: процесс умер посреди набора, записи abort не прошли.
// Без этого монитор будет держать её вечно — ни стоп, ни дедлайн не сработают.
func (s *Scheduler) ProtectResumed(ctx context.Context, pos *models.Position) error {
	if pos.AvgEntryPrice <= 0 {
		return fmt.Errorf("entry: position %s has no fills to protect", pos.ID)
	}
	return s.protectShortHold(ctx, pos.ID, pos.Direction, pos.AvgEntryPrice)
}

func (s *Scheduler) totalQuantity(plan *models.EntryPlan) float64 {
	var qty float64
	for _, t := range plan.Tranches {
		qty += t.Quantity
	}
	return qty
}

func validateRatios(ratios []float64) error {
	if len(ratios) != 3 {
		return fmt.Errorf("entry: want 3 tranche ratios, got %d", len(ratios))
	}
	var sum float64
	for _, r := range ratios {
		if r <= 0 {
			return fmt.Errorf("entry: bad tranche ratio %v", r)
		}
		sum += r
	}
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("entry: tranche ratios sum %v, want 1.0", sum)
	}
	return nil
}

func validateSignal(sig models.Signal) error {
	if sig.Symbol == "" {
		return errors.New("entry: empty symbol")
	}
	if sig.Direction != models.DirectionLong && sig.Direction != models.DirectionShort {
		return fmt.Errorf("entry: bad direction %q", sig.Direction)
	}
	if sig.TotalMargin <= 0 {
		return errors.New("entry: total margin <= 0")
	}
	if sig.Leverage <= 0 {
		return errors.New("entry: leverage <= 0")
	}
	return nil
}
