package runner

import (
	"context"
	"errors"
	"sync"
	"time"
	"trade_executor/internal/metrics"
	"trade_executor/internal/models"
	entrysvc "trade_executor/internal/modules/entry/service"
	exitsvc "trade_executor/internal/modules/exit/service"
	ledgersvc "trade_executor/internal/modules/ledger/service"
	"trade_executor/internal/notify"
	"trade_executor/pkg/logger"
)

// Manager связывает вход и выход: на сигнал — один план набора,
// на позицию — один монитор. Повторный сигнал по той же паре
// (symbol, direction), пока план в полёте, отбрасывается здесь же,
// не доходя до леджера.
type Manager struct {
	entry    *entrysvc.Scheduler
	exits    *exitsvc.Scheduler
	ledger   ledgersvc.Ledger
	notifier notify.Notifier

	mu       sync.Mutex
	inflight map[models.PosKey]struct{}
}

func NewManager(
	entry *entrysvc.Scheduler,
	exits *exitsvc.Scheduler,
	ldg ledgersvc.Ledger,
	n notify.Notifier,
) *Manager {
	return &Manager{
		entry:    entry,
		exits:    exits,
		ledger:   ldg,
		notifier: n,
		inflight: make(map[models.PosKey]struct{}),
	}
}

// Resume при старте подхватывает всё, что осталось после рестарта:
// на каждую незакрытую позицию вешается монитор выхода.
func (m *Manager) Resume(ctx context.Context) error {
	open, err := m.ledger.GetOpenPositions(ctx)
	if err != nil {
		return err
	}
	for _, pos := range open {
		// позиция без дедлайна — план умер до выставления защиты
		// (краш или отменённый shutdown-контекст); монитор по такой
		// никогда не примет решение, чиним прежде чем вешать его
		if pos.PlannedCloseTime.IsZero() {
			if pos.Quantity <= 0 {
				// ни одного филла — просто снимаем позицию
				if _, err := m.ledger.RecordClose(ctx, pos.ID, models.CloseEntryAborted, 0, time.Now()); err != nil &&
					!errors.Is(err, ledgersvc.ErrAlreadyClosed) {
					logger.Error("[RUNNER] %s: закрытие пустой позиции: %v", pos.ID, err)
				}
				continue
			}
			if err := m.entry.ProtectResumed(ctx, pos); err != nil {
				logger.Error("[RUNNER] %s: защита после рестарта: %v", pos.ID, err)
			} else {
				logger.Info("[RUNNER] %s %s: защита выставлена после рестарта (короткое удержание)", pos.Symbol, pos.Direction)
			}
		}
		logger.Info("[RUNNER] подхвачена позиция после рестарта: %s %s %s", pos.ID, pos.Symbol, pos.Direction)
		m.exits.Watch(ctx, pos.ID)
	}
	if len(open) > 0 {
		m.notifier.Sendf("♻️ Рестарт: под наблюдением %d позиций", len(open))
	}
	return nil
}

// HandleSignal запускает план входа в отдельной горутине.
func (m *Manager) HandleSignal(ctx context.Context, sig models.Signal) {
	key := sig.Key()

	m.mu.Lock()
	if _, busy := m.inflight[key]; busy {
		m.mu.Unlock()
		logger.Info("[RUNNER] %s %s: план уже в полёте, сигнал отброшен", sig.Symbol, sig.Direction)
		return
	}
	m.inflight[key] = struct{}{}
	m.mu.Unlock()

	go func() {
		defer func() {
			m.mu.Lock()
			delete(m.inflight, key)
			m.mu.Unlock()
		}()
		m.execute(ctx, sig)
	}()
}

func (m *Manager) execute(ctx context.Context, sig models.Signal) {
	res, err := m.entry.Execute(ctx, sig)
	if err == nil {
		m.exits.Watch(ctx, res.PositionID)
		return
	}

	if errors.Is(err, entrysvc.ErrDuplicateSignal) {
		// гонку с параллельным экземпляром разрешил леджер
		logger.Info("[RUNNER] %s %s: дубликат, позиция уже есть", sig.Symbol, sig.Direction)
		return
	}

	var planErr *entrysvc.PlanError
	if errors.As(err, &planErr) && planErr.FilledCount > 0 {
		// частичный набор: позиция живая, выходом займётся монитор
		logger.Error("[RUNNER] %s %s: план прерван после %d траншей: %v",
			sig.Symbol, sig.Direction, planErr.FilledCount, planErr.Err)
		m.exits.Watch(ctx, planErr.PositionID)
		return
	}

	logger.Error("[RUNNER] %s %s: план не состоялся: %v", sig.Symbol, sig.Direction, err)
}

// Inflight — сколько планов входа сейчас в работе.
func (m *Manager) Inflight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inflight)
}

// RefreshGauges снимает агрегаты из леджера в prometheus.
func (m *Manager) RefreshGauges(ctx context.Context) {
	if open, err := m.ledger.GetOpenPositions(ctx); err == nil {
		metrics.OpenPositions.Set(float64(len(open)))
	}
	if bal, err := m.ledger.Balance(ctx); err == nil {
		metrics.Balance.Set(bal)
	}
}
