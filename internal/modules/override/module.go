package override

import (
	exitsvc "trade_executor/internal/modules/exit/service"
	"trade_executor/internal/modules/override/service"
	pricefeedsvc "trade_executor/internal/modules/pricefeed/service"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("override",
		fx.Provide(
			service.NewFeed, // func(*config.Config, service.CandleSource) *service.Feed
		),

		// адаптеры: свечи из pricefeed, фид — в exit-монитор
		fx.Provide(
			func(c *pricefeedsvc.Client) service.CandleSource {
				return c
			},
			func(f *service.Feed) exitsvc.OverrideFeed {
				return f
			},
		),
	)
}
