package service

import (
	"database/sql"
	"trade_executor/internal/models"

	"github.com/bytedance/sonic"
	"github.com/jackc/pgx/v5"
)

const positionColumns = `
	id, symbol, direction, status, avg_entry_price, quantity, margin, leverage,
	stop_loss_price, take_profit_price, entry_signal_time, planned_close_time,
	extended_close_time, max_profit_pct, max_profit_price, close_reason,
	close_price, close_time, signal_score, signal_components, updated_at, version`

const selectPositionSQL = `SELECT ` + positionColumns + ` FROM positions`

func scanPosition(row pgx.Row) (*models.Position, error) {
	var (
		p          models.Position
		direction  string
		status     string
		sl, tp     sql.NullFloat64
		planned    sql.NullTime
		extended   sql.NullTime
		reason     sql.NullString
		closePx    sql.NullFloat64
		closeTime  sql.NullTime
		components []byte
	)

	err := row.Scan(
		&p.ID, &p.Symbol, &direction, &status, &p.AvgEntryPrice, &p.Quantity,
		&p.Margin, &p.Leverage, &sl, &tp, &p.EntrySignalTime, &planned,
		&extended, &p.MaxProfitPct, &p.MaxProfitPrice, &reason, &closePx,
		&closeTime, &p.SignalScore, &components, &p.UpdatedAt, &p.Version,
	)
	if err != nil {
		return nil, err
	}

	p.Direction = models.Direction(direction)
	p.Status = models.PositionStatus(status)
	p.StopLossPrice = sl.Float64
	p.TakeProfitPrice = tp.Float64
	if planned.Valid {
		p.PlannedCloseTime = planned.Time
	}
	if extended.Valid {
		p.ExtendedCloseTime = extended.Time
	}
	p.CloseReason = models.CloseReason(reason.String)
	p.ClosePrice = closePx.Float64
	if closeTime.Valid {
		p.CloseTime = closeTime.Time
	}
	if len(components) > 0 {
		_ = sonic.Unmarshal(components, &p.SignalComponents)
	}
	return &p, nil
}
