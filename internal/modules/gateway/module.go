package gateway

import (
	"trade_executor/internal/modules/config"
	entrysvc "trade_executor/internal/modules/entry/service"
	exitsvc "trade_executor/internal/modules/exit/service"
	"trade_executor/internal/modules/gateway/service"
	samplersvc "trade_executor/internal/modules/sampler/service"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("gateway",
		fx.Provide(
			func(cfg *config.Config, feed samplersvc.PriceFeed) entrysvc.OrderGateway {
				if cfg.Paper {
					return service.NewPaper(feed)
				}
				return service.NewClient(cfg)
			},
		),

		// адаптер: тот же гейтвей для exit-монитора
		fx.Provide(
			func(g entrysvc.OrderGateway) exitsvc.OrderGateway {
				return g
			},
		),
	)
}
