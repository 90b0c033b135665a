package notify

import (
	"trade_executor/internal/modules/config"
	"trade_executor/pkg/logger"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("notify",
		fx.Provide(func(cfg *config.Config) Notifier {
			if cfg.Telegram.Token == "" {
				return NewStdout()
			}
			t, err := NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID)
			if err != nil {
				// нотификации вторичны: без телеграма едем на stdout
				logger.Error("[NOTIFY] telegram init: %v", err)
				return NewStdout()
			}
			return t
		}),
	)
}
