package service

import (
	"context"
	"errors"
	"time"
	"trade_executor/internal/models"
)

var (
	// ErrDuplicatePosition — по (symbol, direction) уже есть незакрытая позиция.
	ErrDuplicatePosition = errors.New("ledger: duplicate position")
	// ErrAlreadyClosed — повторное закрытие; маржа и PnL уже проведены.
	ErrAlreadyClosed = errors.New("ledger: position already closed")
	// ErrConflict — optimistic-concurrency: перечитать и повторить.
	ErrConflict = errors.New("ledger: version conflict")
	ErrNotFound = errors.New("ledger: position not found")
	// ErrAlreadyExtended — продление дедлайна выдаётся ровно один раз.
	ErrAlreadyExtended    = errors.New("ledger: close time already extended")
	ErrInsufficientMargin = errors.New("ledger: insufficient balance")
)

// Ledger — единственный владелец состояния позиций/траншей и баланса
// маржи. Все списания и зачисления идут только через него.
type Ledger interface {
	// CreatePosition заводит позицию в building. Дубликат по
	// (symbol, direction) отклоняется транзакционно.
	CreatePosition(ctx context.Context, pos *models.Position) error

	// AppendTrancheFill атомарно: запись транша, пересчёт средней цены,
	// списание маржи. Возвращает позицию после апдейта.
	AppendTrancheFill(ctx context.Context, positionID string, t models.Tranche) (*models.Position, error)

	// SetProtection выставляет SL/TP и planned_close_time после последнего транша.
	SetProtection(ctx context.Context, positionID string, sl, tp float64, plannedClose time.Time) error

	TransitionStatus(ctx context.Context, positionID string, from, to models.PositionStatus) error

	// RecordClose — CAS building/open -> closed, ровно один раз; в той же
	// транзакции возврат маржи и реализованный PnL.
	RecordClose(ctx context.Context, positionID string, reason models.CloseReason, price float64, now time.Time) (*models.Position, error)

	UpdateMaxProfit(ctx context.Context, positionID string, pct, price float64) error

	// ExtendCloseTime — разовое продление дедлайна (shallow-loss ветка).
	ExtendCloseTime(ctx context.Context, positionID string, until time.Time) error

	GetPosition(ctx context.Context, positionID string) (*models.Position, error)
	GetOpenPositions(ctx context.Context) ([]*models.Position, error)
	HasActive(ctx context.Context, symbol string, direction models.Direction) (bool, error)

	Balance(ctx context.Context) (float64, error)
}
