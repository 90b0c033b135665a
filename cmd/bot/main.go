package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"trade_executor/internal/modules/config"
	"trade_executor/internal/modules/entry"
	"trade_executor/internal/modules/exit"
	"trade_executor/internal/modules/gateway"
	"trade_executor/internal/modules/health"
	"trade_executor/internal/modules/override"
	"trade_executor/internal/modules/postgres"
	"trade_executor/internal/modules/pricefeed"
	"trade_executor/internal/modules/sampler"
	"trade_executor/internal/notify"
	"trade_executor/internal/runner"
	"trade_executor/pkg/logger"
	"trade_executor/pkg/tracing"

	"go.uber.org/fx"
	"gopkg.in/yaml.v2"

	ledger "trade_executor/internal/modules/ledger"
)

const serviceName = "trade_executor"

func main() {
	dumpConfig := flag.Bool("dump-config", false, "print effective config as yaml and exit")
	flag.Parse()

	if err := logger.Init(serviceName); err != nil {
		log.Fatal(err)
	}

	if *dumpConfig {
		cfg, err := config.NewConfig()
		if err != nil {
			logger.Fatal("config: %v", err)
		}
		out, err := yaml.Marshal(cfg)
		if err != nil {
			logger.Fatal("config marshal: %v", err)
		}
		fmt.Print(string(out))
		os.Exit(0)
	}

	tracing.SetServiceName(serviceName)

	app := fx.New(
		fx.Provide(
			func() context.Context {
				return context.Background()
			},
		),
		config.Module(),
		postgres.Module(),
		pricefeed.Module(),
		sampler.Module(),
		ledger.Module(),
		gateway.Module(),
		notify.Module(),
		entry.Module(),
		override.Module(),
		exit.Module(),
		runner.Module(),
		health.Module(),

		fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config) {
			if cfg.Jaeger.Host == "" {
				return
			}
			_, closeTracer, err := tracing.InitTracer(tracing.Config{
				Host: cfg.Jaeger.Host,
				Port: cfg.Jaeger.Port,
			})
			if err != nil {
				logger.Error("[MAIN] jaeger init: %v", err)
				return
			}
			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					closeTracer()
					return nil
				},
			})
		}),
	)

	app.Run()
}
