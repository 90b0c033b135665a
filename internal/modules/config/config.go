package config

import (
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

const (
	configFilePathENV = "CONFIG_FILE"
	tokenTelegramENV  = "TELEGRAM_TOKEN"
	databaseDSN       = "DATABASE_DSN"
)

// Config ...
type Config struct {
	Telegram struct {
		Token  string `mapstructure:"token"`
		ChatID int64  `mapstructure:"chat_id"`
	} `mapstructure:"telegram"`
	DB      string `mapstructure:"db_dsn"`
	Service struct {
		Host      string `mapstructure:"host"`
		AdminPort int    `mapstructure:"admin_port"`
	} `mapstructure:"service"`

	OKX struct {
		APIKey     string `mapstructure:"api_key"`
		APISecret  string `mapstructure:"api_secret"`
		Passphrase string `mapstructure:"passphrase"`
		RESTBase   string `mapstructure:"rest_base"`
		WSURL      string `mapstructure:"ws_url"`

		// сетка инструмента: цена кратна TickSize, количество — LotStep
		TickSize float64 `mapstructure:"tick_size"`
		LotStep  float64 `mapstructure:"lot_step"`
	} `mapstructure:"okx"`

	Jaeger struct {
		Host string `mapstructure:"host"` // пусто — трейсер noop
		Port int    `mapstructure:"port"`
	} `mapstructure:"jaeger"`

	// paper=true — леджер в памяти, ордера не уходят на биржу
	Paper bool `mapstructure:"paper"`

	StartBalance float64 `mapstructure:"start_balance"`

	Sampler  SamplerConfig  `mapstructure:"sampler"`
	Entry    EntryConfig    `mapstructure:"entry"`
	Exit     ExitConfig     `mapstructure:"exit"`
	Override OverrideConfig `mapstructure:"override"`
}

// SamplerConfig — параметры скользящего окна цен.
type SamplerConfig struct {
	Interval   time.Duration `mapstructure:"interval"`    // шаг опроса цены
	Window     time.Duration `mapstructure:"window"`      // длина окна
	MinSamples int           `mapstructure:"min_samples"` // меньше — baseline не готов

	// |Δ| < FlatTrendPct => flat; сила = min(|Δ|/FullTrendPct, 1.0)
	FlatTrendPct float64 `mapstructure:"flat_trend_pct"`
	FullTrendPct float64 `mapstructure:"full_trend_pct"`
}

// EntryConfig — параметры набора позиции тремя траншами.
type EntryConfig struct {
	TrancheRatios []float64 `mapstructure:"tranche_ratios"` // ровно 3, сумма = 1.0

	PollInterval  time.Duration `mapstructure:"poll_interval"`
	WarmupTimeout time.Duration `mapstructure:"warmup_timeout"` // ожидание готовности baseline

	// Абсолютные дедлайны траншей от момента сигнала. Монотонно растут,
	// последний строго меньше TotalDeadline — план всегда успевает.
	TrancheDeadlines []time.Duration `mapstructure:"tranche_deadlines"`
	TotalDeadline    time.Duration   `mapstructure:"total_deadline"`

	MinSpacing  time.Duration `mapstructure:"min_spacing"`  // пауза между траншами
	PullbackPct float64       `mapstructure:"pullback_pct"` // ранний вход транша 2

	OrderRetries int `mapstructure:"order_retries"`

	StopLossPct   float64 `mapstructure:"stop_loss_pct"`   // офсет SL от средней цены, %
	TakeProfitPct float64 `mapstructure:"take_profit_pct"` // офсет TP от средней цены, %

	// Тиры удержания по score: сильный сигнал держим дольше.
	HoldHighScore float64       `mapstructure:"hold_high_score"`
	HoldLowScore  float64       `mapstructure:"hold_low_score"`
	HoldLong      time.Duration `mapstructure:"hold_long"`
	HoldMedium    time.Duration `mapstructure:"hold_medium"`
	HoldShort     time.Duration `mapstructure:"hold_short"`
}

// ExitConfig — параметры слоёв выхода.
type ExitConfig struct {
	TickInterval   time.Duration `mapstructure:"tick_interval"`
	PreCloseWindow time.Duration `mapstructure:"pre_close_window"` // окно до planned_close_time

	// Тиры прибыли (в % движения цены) и допуски просадки от максимума.
	HighTierPct         float64 `mapstructure:"high_tier_pct"`
	HighTierDrawdownPct float64 `mapstructure:"high_tier_drawdown_pct"`
	MidTierPct          float64 `mapstructure:"mid_tier_pct"`
	MidTierDrawdownPct  float64 `mapstructure:"mid_tier_drawdown_pct"`
	LowTierTakePct      float64 `mapstructure:"low_tier_take_pct"`

	ShallowLossPct float64       `mapstructure:"shallow_loss_pct"` // полоса мелкого минуса
	Extension      time.Duration `mapstructure:"extension"`        // разовое продление

	OverrideMinStrength float64 `mapstructure:"override_min_strength"`
}

// OverrideConfig — детектор сильного разворота по свечам (EMA fast/slow).
type OverrideConfig struct {
	Bar     string `mapstructure:"bar"`     // таймфрейм свечей
	Candles int    `mapstructure:"candles"` // сколько свечей тянуть

	EMAFast int `mapstructure:"ema_fast"`
	EMASlow int `mapstructure:"ema_slow"`

	// |gap| < MinGapPct => разворота нет; сила = min(|gap|/FullGapPct, 1.0)
	MinGapPct  float64 `mapstructure:"min_gap_pct"`
	FullGapPct float64 `mapstructure:"full_gap_pct"`

	CacheTTL time.Duration `mapstructure:"cache_ttl"` // не дёргаем REST чаще
}

func NewConfig() (*Config, error) {
	v := viper.New()

	configFileName := os.Getenv(configFilePathENV)
	if configFileName == "" {
		configFileName = "values_local"
	}
	v.SetConfigName(configFileName)
	v.SetConfigType("yaml")
	v.AddConfigPath("configs")
	v.AddConfigPath(".")

	setDefaults(v)

	// файла может не быть — тогда едем на дефолтах и env
	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if token := os.Getenv(tokenTelegramENV); token != "" {
		config.Telegram.Token = token
	}
	if dsn := os.Getenv(databaseDSN); dsn != "" {
		config.DB = dsn
	}
	if chat := os.Getenv("TELEGRAM_CHAT_ID"); chat != "" {
		if id, err := strconv.ParseInt(chat, 10, 64); err == nil {
			config.Telegram.ChatID = id
		}
	}
	if os.Getenv("PAPER") == "1" {
		config.Paper = true
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("start_balance", 10000.0)

	v.SetDefault("jaeger.port", 6831)

	v.SetDefault("okx.rest_base", "https://www.okx.com")
	v.SetDefault("okx.ws_url", "wss://ws.okx.com:8443/ws/v5/public")
	v.SetDefault("okx.tick_size", 0.01)
	v.SetDefault("okx.lot_step", 0.0001)

	v.SetDefault("sampler.interval", "10s")
	v.SetDefault("sampler.window", "5m")
	v.SetDefault("sampler.min_samples", 6)
	v.SetDefault("sampler.flat_trend_pct", 0.15)
	v.SetDefault("sampler.full_trend_pct", 0.5)

	v.SetDefault("entry.tranche_ratios", []float64{0.3, 0.3, 0.4})
	v.SetDefault("entry.poll_interval", "10s")
	v.SetDefault("entry.warmup_timeout", "90s")
	v.SetDefault("entry.tranche_deadlines", []string{"15m", "20m", "28m"})
	v.SetDefault("entry.total_deadline", "30m")
	v.SetDefault("entry.min_spacing", "3m")
	v.SetDefault("entry.pullback_pct", 0.3)
	v.SetDefault("entry.order_retries", 3)
	v.SetDefault("entry.stop_loss_pct", 2.0)
	v.SetDefault("entry.take_profit_pct", 6.0)
	v.SetDefault("entry.hold_high_score", 80)
	v.SetDefault("entry.hold_low_score", 60)
	v.SetDefault("entry.hold_long", "4h")
	v.SetDefault("entry.hold_medium", "2h")
	v.SetDefault("entry.hold_short", "1h")

	v.SetDefault("exit.tick_interval", "2s")
	v.SetDefault("exit.pre_close_window", "30m")
	v.SetDefault("exit.high_tier_pct", 5.0)
	v.SetDefault("exit.high_tier_drawdown_pct", 0.5)
	v.SetDefault("exit.mid_tier_pct", 2.0)
	v.SetDefault("exit.mid_tier_drawdown_pct", 0.8)
	v.SetDefault("exit.low_tier_take_pct", 0.5)
	v.SetDefault("exit.shallow_loss_pct", 0.5)
	v.SetDefault("exit.extension", "30m")
	v.SetDefault("exit.override_min_strength", 0.7)

	v.SetDefault("override.bar", "5m")
	v.SetDefault("override.candles", 60)
	v.SetDefault("override.ema_fast", 9)
	v.SetDefault("override.ema_slow", 21)
	v.SetDefault("override.min_gap_pct", 0.1)
	v.SetDefault("override.full_gap_pct", 0.6)
	v.SetDefault("override.cache_ttl", "30s")
}

// PlannedHold — сколько максимум держим позицию для данного score.
func (c EntryConfig) PlannedHold(score float64) time.Duration {
	switch {
	case score >= c.HoldHighScore:
		return c.HoldLong
	case score >= c.HoldLowScore:
		return c.HoldMedium
	default:
		return c.HoldShort
	}
}

// Deadline транша n от момента сигнала.
func (c EntryConfig) Deadline(signalTime time.Time, tranche int) time.Time {
	if tranche < 0 || tranche >= len(c.TrancheDeadlines) {
		return signalTime.Add(c.TotalDeadline)
	}
	return signalTime.Add(c.TrancheDeadlines[tranche])
}
