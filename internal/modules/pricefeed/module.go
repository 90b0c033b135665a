package pricefeed

import (
	"context"
	exitsvc "trade_executor/internal/modules/exit/service"
	"trade_executor/internal/modules/pricefeed/service"
	samplersvc "trade_executor/internal/modules/sampler/service"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("pricefeed",
		fx.Provide(
			service.NewClient, // func(*config.Config) *service.Client
		),

		// адаптеры: один клиент кормит и сэмплер, и exit-монитор
		fx.Provide(
			func(c *service.Client) samplersvc.PriceFeed {
				return c
			},
			func(c *service.Client) exitsvc.PriceFeed {
				return c
			},
		),

		fx.Invoke(
			func(lc fx.Lifecycle, c *service.Client, ctx context.Context) {
				lc.Append(fx.Hook{
					OnStart: func(_ context.Context) error {
						go c.Run(ctx)
						return nil
					},
				})
			},
		),
	)
}
