package sampler

import (
	"trade_executor/internal/modules/sampler/service"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("sampler",
		fx.Provide(
			service.NewRegistry, // func(*config.Config, service.PriceFeed) *service.Registry
		),
	)
}
