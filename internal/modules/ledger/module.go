package ledger

import (
	"trade_executor/internal/modules/config"
	"trade_executor/internal/modules/ledger/service"
	"trade_executor/pkg/db"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("ledger",
		fx.Provide(
			func(cfg *config.Config, txm *db.PgTxManager) service.Ledger {
				if cfg.Paper {
					return service.NewMemory(cfg.StartBalance)
				}
				return service.NewPg(txm)
			},
		),
	)
}
