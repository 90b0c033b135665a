package entry

import (
	"trade_executor/internal/modules/entry/service"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("entry",
		fx.Provide(
			service.NewScheduler, // func(cfg, registry, ledger, gateway, notifier) *service.Scheduler
		),
	)
}
