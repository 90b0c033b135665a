package exit

import (
	"trade_executor/internal/modules/exit/service"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("exit",
		fx.Provide(
			service.NewMonitor,   // func(cfg, ledger, feed, gateway, overrides, notifier) *service.Monitor
			service.NewScheduler, // func(*service.Monitor) *service.Scheduler
		),
	)
}
