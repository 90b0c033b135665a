package service

import (
	"context"
	"fmt"
	"time"
	"trade_executor/internal/models"
	"trade_executor/pkg/db"

	"github.com/bytedance/sonic"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
)

const pgUniqueViolation = "23505"

// Pg implement Ledger over postgres
type Pg struct {
	db db.TxManager
}

func NewPg(txm db.TxManager) *Pg {
	return &Pg{db: txm}
}

func (l *Pg) CreatePosition(ctx context.Context, pos *models.Position) (err error) {
	defer func() {
		if err != nil && err != ErrDuplicatePosition {
			err = fmt.Errorf("Ledger.CreatePosition: %w", err)
		}
	}()

	var components []byte
	components, err = sonic.Marshal(pos.SignalComponents)
	if err != nil {
		return err
	}

	return l.db.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctxTx, `
			INSERT INTO positions (
				id, symbol, direction, status, avg_entry_price, quantity, margin,
				leverage, entry_signal_time, signal_score, signal_components,
				updated_at, version
			) VALUES ($1,$2,$3,$4,0,0,0,$5,$6,$7,$8,now(),0)`,
			pos.ID, pos.Symbol, string(pos.Direction), string(models.StatusBuilding),
			pos.Leverage, pos.EntrySignalTime, pos.SignalScore, components,
		)
		if err != nil {
			var pgErr *pgconn.PgError
			// частичный уникальный индекс по (symbol, direction) для незакрытых —
			// гонка двух одинаковых сигналов разрешается здесь
			if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
				return ErrDuplicatePosition
			}
			return err
		}
		return nil
	})
}

func (l *Pg) AppendTrancheFill(ctx context.Context, positionID string, t models.Tranche) (pos *models.Position, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Ledger.AppendTrancheFill: %w", err)
		}
	}()

	err = l.db.RunRepeatableRead(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		cur, err := scanPosition(tx.QueryRow(ctxTx, selectPositionSQL+` WHERE id = $1 FOR UPDATE`, positionID))
		if err != nil {
			return err
		}
		if cur.IsClosed() {
			return ErrAlreadyClosed
		}

		// списание маржи и запись транша — одна транзакция: упасть между
		// ними нельзя
		tag, err := tx.Exec(ctxTx,
			`UPDATE account SET balance = balance - $1 WHERE id = 1 AND balance >= $1`, t.Margin)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrInsufficientMargin
		}

		_, err = tx.Exec(ctxTx, `
			INSERT INTO tranches (position_id, idx, ratio, fill_price, fill_time, quantity, margin, fill_reason)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			positionID, t.Index, t.Ratio, t.FillPrice, t.FillTime, t.Quantity, t.Margin, t.FillReason,
		)
		if err != nil {
			return err
		}

		notional := cur.AvgEntryPrice*cur.Quantity + t.FillPrice*t.Quantity
		cur.Quantity += t.Quantity
		if cur.Quantity > 0 {
			cur.AvgEntryPrice = notional / cur.Quantity
		}
		cur.Margin += t.Margin

		tag, err = tx.Exec(ctxTx, `
			UPDATE positions
			SET avg_entry_price=$2, quantity=$3, margin=$4, updated_at=now(), version=version+1
			WHERE id=$1 AND version=$5`,
			positionID, cur.AvgEntryPrice, cur.Quantity, cur.Margin, cur.Version,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrConflict
		}
		cur.Version++
		pos = cur
		return nil
	})
	return pos, err
}

func (l *Pg) SetProtection(ctx context.Context, positionID string, sl, tp float64, plannedClose time.Time) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Ledger.SetProtection: %w", err)
		}
	}()

	return l.db.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctxTx, `
			UPDATE positions
			SET stop_loss_price=$2, take_profit_price=$3, planned_close_time=$4,
			    updated_at=now(), version=version+1
			WHERE id=$1 AND status <> 'closed'`,
			positionID, sl, tp, plannedClose,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (l *Pg) TransitionStatus(ctx context.Context, positionID string, from, to models.PositionStatus) (err error) {
	defer func() {
		if err != nil && err != ErrConflict {
			err = fmt.Errorf("Ledger.TransitionStatus: %w", err)
		}
	}()

	return l.db.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctxTx, `
			UPDATE positions SET status=$3, updated_at=now(), version=version+1
			WHERE id=$1 AND status=$2`,
			positionID, string(from), string(to),
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrConflict
		}
		return nil
	})
}

func (l *Pg) RecordClose(ctx context.Context, positionID string, reason models.CloseReason, price float64, now time.Time) (pos *models.Position, err error) {
	defer func() {
		if err != nil && err != ErrAlreadyClosed {
			err = fmt.Errorf("Ledger.RecordClose: %w", err)
		}
	}()

	err = l.db.RunRepeatableRead(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		// CAS по статусу: второй закрывающий получает 0 строк
		row := tx.QueryRow(ctxTx, `
			UPDATE positions
			SET status='closed', close_reason=$2, close_price=$3, close_time=$4,
			    updated_at=now(), version=version+1
			WHERE id=$1 AND status <> 'closed'
			RETURNING `+positionColumns,
			positionID, string(reason), price, now,
		)
		cur, err := scanPosition(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				// либо нет позиции, либо уже закрыта — различаем
				var n int
				if qerr := tx.QueryRow(ctxTx,
					`SELECT 1 FROM positions WHERE id=$1`, positionID).Scan(&n); qerr != nil {
					return ErrNotFound
				}
				return ErrAlreadyClosed
			}
			return err
		}

		// возврат маржи + реализованный PnL той же транзакцией
		_, err = tx.Exec(ctxTx,
			`UPDATE account SET balance = balance + $1 WHERE id = 1`,
			cur.Margin+cur.PnL(price),
		)
		if err != nil {
			return err
		}
		pos = cur
		return nil
	})
	return pos, err
}

func (l *Pg) UpdateMaxProfit(ctx context.Context, positionID string, pct, price float64) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Ledger.UpdateMaxProfit: %w", err)
		}
	}()

	return l.db.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctxTx, `
			UPDATE positions
			SET max_profit_pct=$2, max_profit_price=$3, updated_at=now(), version=version+1
			WHERE id=$1 AND max_profit_pct < $2 AND status <> 'closed'`,
			positionID, pct, price,
		)
		return err
	})
}

func (l *Pg) ExtendCloseTime(ctx context.Context, positionID string, until time.Time) (err error) {
	defer func() {
		if err != nil && err != ErrAlreadyExtended {
			err = fmt.Errorf("Ledger.ExtendCloseTime: %w", err)
		}
	}()

	return l.db.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctxTx, `
			UPDATE positions
			SET extended_close_time=$2, updated_at=now(), version=version+1
			WHERE id=$1 AND extended_close_time IS NULL AND status <> 'closed'`,
			positionID, until,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			// либо нет позиции, либо продление уже было — различаем
			var n int
			if qerr := tx.QueryRow(ctxTx,
				`SELECT 1 FROM positions WHERE id=$1`, positionID).Scan(&n); qerr != nil {
				return ErrNotFound
			}
			return ErrAlreadyExtended
		}
		return nil
	})
}

func (l *Pg) GetPosition(ctx context.Context, positionID string) (pos *models.Position, err error) {
	err = l.db.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		cur, err := scanPosition(tx.QueryRow(ctxTx, selectPositionSQL+` WHERE id = $1`, positionID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		pos = cur
		return nil
	})
	return pos, err
}

func (l *Pg) GetOpenPositions(ctx context.Context) (out []*models.Position, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Ledger.GetOpenPositions: %w", err)
		}
	}()

	err = l.db.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		rows, err := tx.Query(ctxTx, selectPositionSQL+` WHERE status <> 'closed' ORDER BY entry_signal_time`)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			p, err := scanPosition(rows)
			if err != nil {
				return err
			}
			out = append(out, p)
		}
		return rows.Err()
	})
	return out, err
}

func (l *Pg) HasActive(ctx context.Context, symbol string, direction models.Direction) (active bool, err error) {
	err = l.db.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		return tx.QueryRow(ctxTx, `
			SELECT EXISTS (
				SELECT 1 FROM positions
				WHERE symbol=$1 AND direction=$2 AND status <> 'closed'
			)`, symbol, string(direction)).Scan(&active)
	})
	return active, err
}

func (l *Pg) Balance(ctx context.Context) (balance float64, err error) {
	err = l.db.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		return tx.QueryRow(ctxTx, `SELECT balance FROM account WHERE id = 1`).Scan(&balance)
	})
	return balance, err
}
