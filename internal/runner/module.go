package runner

import (
	"context"
	"time"
	"trade_executor/internal/models"

	"go.uber.org/fx"
)

func newSignalsChan() chan models.Signal {
	return make(chan models.Signal, 4096)
}

func asSendOnlySignals(ch chan models.Signal) chan<- models.Signal { return ch }

func Module() fx.Option {
	return fx.Module("runner",
		fx.Provide(
			NewManager,
			newSignalsChan,    // chan models.Signal
			asSendOnlySignals, // chan<- models.Signal для продьюсеров
		),
		fx.Invoke(func(
			lc fx.Lifecycle,
			m *Manager,
			sigs chan models.Signal,
			ctx context.Context,
		) {
			lc.Append(fx.Hook{
				OnStart: func(startCtx context.Context) error {
					if err := m.Resume(startCtx); err != nil {
						return err
					}
					go func() {
						for {
							select {
							case <-ctx.Done():
								return
							case sig := <-sigs:
								m.HandleSignal(ctx, sig)
							}
						}
					}()

					// гейджи обновляются фоном, не на горячем пути
					go func() {
						t := time.NewTicker(15 * time.Second)
						defer t.Stop()
						for {
							select {
							case <-ctx.Done():
								return
							case <-t.C:
								m.RefreshGauges(ctx)
							}
						}
					}()
					return nil
				},
			})
		}),
	)
}
