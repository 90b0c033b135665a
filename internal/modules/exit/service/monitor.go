package service

import (
	"context"
	"errors"
	"time"
	"trade_executor/internal/metrics"
	"trade_executor/internal/models"
	"trade_executor/internal/modules/config"
	ledgersvc "trade_executor/internal/modules/ledger/service"
	"trade_executor/internal/notify"
	"trade_executor/pkg/logger"

	"github.com/opentracing/opentracing-go"
)

// PriceFeed — текущая цена для тиков мониторинга.
type PriceFeed interface {
	CurrentPrice(ctx context.Context, symbol string) (float64, error)
}

// OrderGateway — закрытие позиции маркетом.
type OrderGateway interface {
	Place(ctx context.Context, symbol string, direction models.Direction, quantity, priceHint float64) (models.Fill, error)
	Close(ctx context.Context, symbol string, direction models.Direction, quantity float64) (models.Fill, error)
}

// OverrideFeed — внешний индикатор сильного разворота.
type OverrideFeed interface {
	Current(ctx context.Context, symbol string) (models.Override, bool)
}

const closeFailNotifyCooldown = time.Minute

// Monitor сторожит одну позицию до закрытия. Неудачное закрытие не
// роняет цикл: брошенная без присмотра позиция хуже повторного вызова.
type Monitor struct {
	cfg       *config.Config
	ledger    ledgersvc.Ledger
	feed      PriceFeed
	gw        OrderGateway
	overrides OverrideFeed
	notifier  notify.Notifier
}

func NewMonitor(
	cfg *config.Config,
	ldg ledgersvc.Ledger,
	feed PriceFeed,
	gw OrderGateway,
	overrides OverrideFeed,
	n notify.Notifier,
) *Monitor {
	return &Monitor{
		cfg:       cfg,
		ledger:    ldg,
		feed:      feed,
		gw:        gw,
		overrides: overrides,
		notifier:  n,
	}
}

// Run крутится до записи закрытия в леджере (кем бы оно ни было сделано).
func (m *Monitor) Run(ctx context.Context, positionID string) {
	ticker := time.NewTicker(m.cfg.Exit.TickInterval)
	defer ticker.Stop()

	for {
		if done := m.tick(ctx, positionID); done {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// tick — один проход: цена, максимум, слои правил. true => позиция закрыта.
func (m *Monitor) tick(ctx context.Context, positionID string) bool {
	pos, err := m.ledger.GetPosition(ctx, positionID)
	if err != nil {
		if errors.Is(err, ledgersvc.ErrNotFound) {
			return true
		}
		logger.Error("[EXIT] %s: чтение позиции: %v", positionID, err)
		return false
	}
	if pos.IsClosed() {
		return true
	}
	if pos.Quantity <= 0 || pos.AvgEntryPrice <= 0 {
		// ещё нет ни одного транша — следим дальше
		return false
	}

	price, err := m.feed.CurrentPrice(ctx, pos.Symbol)
	if err != nil || price <= 0 {
		logger.Error("[EXIT] %s: цена недоступна: %v", pos.Symbol, err)
		return false
	}

	// максимум благоприятного хода обновляется на каждом тике,
	// какой бы слой дальше ни сработал — от него зависят тиры
	if profit := pos.ProfitPct(price); profit > pos.MaxProfitPct {
		if err := m.ledger.UpdateMaxProfit(ctx, pos.ID, profit, price); err != nil {
			logger.Error("[EXIT] %s: max profit: %v", pos.ID, err)
		} else {
			pos.MaxProfitPct = profit
			pos.MaxProfitPrice = price
		}
	}

	var override *models.Override
	if o, ok := m.overrides.Current(ctx, pos.Symbol); ok {
		override = &o
	}

	dec := decideExit(exitInput{
		Position: *pos,
		Price:    price,
		Override: override,
		Now:      time.Now(),
		Cfg:      m.cfg.Exit,
	})

	if dec.Extend {
		until := time.Now().Add(m.cfg.Exit.Extension)
		err := m.ledger.ExtendCloseTime(ctx, pos.ID, until)
		switch {
		case err == nil:
			logger.Info("[EXIT] %s: дедлайн продлён до %s (мелкий минус)", pos.Symbol, until.Format(time.RFC3339))
			m.notifier.Sendf("🕒 [%s] Дедлайн продлён: ждём возврата к безубытку", pos.Symbol)
		case errors.Is(err, ledgersvc.ErrAlreadyExtended):
			// гонка с параллельным тиком — продление уже есть
		default:
			logger.Error("[EXIT] %s: продление: %v", pos.ID, err)
		}
		return false
	}

	if dec.Close {
		return m.close(ctx, pos, price, dec.Reason)
	}
	return false
}

// close: ордер на бирже, затем CAS-запись в леджер. Возврат false
// оставляет позицию под наблюдением — закрытие повторится на след. тике.
func (m *Monitor) close(ctx context.Context, pos *models.Position, price float64, reason models.CloseReason) bool {
	span := opentracing.StartSpan("exit.close")
	span.SetTag("symbol", pos.Symbol)
	span.SetTag("reason", string(reason))
	defer span.Finish()

	fill, err := m.gw.Close(ctx, pos.Symbol, pos.Direction, pos.Quantity)
	if err != nil {
		logger.Error("[EXIT] %s: закрытие не прошло (%s): %v", pos.Symbol, reason, err)
		// повтор идёт каждый тик, в телеграм — не чаще раза в минуту
		if m.notifier.CanSend("close_fail:"+pos.ID, closeFailNotifyCooldown) {
			m.notifier.Sendf("⚠️ [%s] Закрытие не прошло (%s): %v — повторим", pos.Symbol, reason, err)
		}
		return false
	}

	closePx := fill.Price
	if closePx <= 0 {
		closePx = price
	}

	closed, err := m.ledger.RecordClose(ctx, pos.ID, reason, closePx, time.Now())
	if err != nil {
		if errors.Is(err, ledgersvc.ErrAlreadyClosed) {
			// параллельный закрывающий успел первым — деньги проведены один раз
			return true
		}
		logger.Error("[EXIT] %s: запись закрытия: %v", pos.ID, err)
		return false
	}

	metrics.Closes.WithLabelValues(string(reason)).Inc()
	m.notifier.Sendf("🔒 [%s] Закрыто %s @ %.6f | reason=%s pnl=%.4f maxProfit=%.2f%%",
		closed.Symbol, closed.Direction, closePx, reason, closed.PnL(closePx), closed.MaxProfitPct)
	return true
}
