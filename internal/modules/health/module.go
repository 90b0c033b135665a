package health

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/fx"

	"github.com/bytedance/sonic"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trade_executor/internal/models"
	"trade_executor/internal/modules/config"
	"trade_executor/internal/modules/health/service"
	overridesvc "trade_executor/internal/modules/override/service"
	pricefeedsvc "trade_executor/internal/modules/pricefeed/service"
	"trade_executor/internal/runner"
	"trade_executor/pkg/logger"
)

func NewMux(
	state *service.State,
	mgr *runner.Manager,
	sigs chan<- models.Signal,
	overrides *overridesvc.Feed,
) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		// liveness: процесс жив
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if !state.Ready() {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"ready":         state.Ready(),
			"feedConnected": state.FeedConnected(),
			"uptimeSec":     int64(state.Uptime().Seconds()),
			"inflightPlans": mgr.Inflight(),
			"lastPriceUnix": func() int64 {
				t := state.LastPrice()
				if t.IsZero() {
					return 0
				}
				return t.Unix()
			}(),
		}
		w.Header().Set("Content-Type", "application/json")
		body, _ := sonic.Marshal(resp)
		_, _ = w.Write(body)
	})

	mux.Handle("/metrics", promhttp.Handler())

	// ручная подача сигнала (smoke-тесты, paper-прогоны)
	mux.HandleFunc("/signal", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST only", http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var req struct {
			Symbol      string             `json:"symbol"`
			Direction   string             `json:"direction"`
			Score       float64            `json:"score"`
			Leverage    int                `json:"leverage"`
			TotalMargin float64            `json:"total_margin"`
			Components  map[string]float64 `json:"components"`
		}
		if err := sonic.Unmarshal(body, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		dir := models.Direction(strings.ToUpper(req.Direction))
		if dir != models.DirectionLong && dir != models.DirectionShort {
			http.Error(w, "direction must be LONG or SHORT", http.StatusBadRequest)
			return
		}

		sig := models.Signal{
			Symbol:      req.Symbol,
			Direction:   dir,
			Score:       req.Score,
			Leverage:    req.Leverage,
			TotalMargin: req.TotalMargin,
			Components:  req.Components,
			IssuedAt:    time.Now(),
		}

		select {
		case sigs <- sig:
			logger.Info("[ADMIN] сигнал принят: %s %s score=%.1f", sig.Symbol, sig.Direction, sig.Score)
			w.WriteHeader(http.StatusAccepted)
		default:
			http.Error(w, "signal queue full", http.StatusServiceUnavailable)
		}
	})

	// ручной override: strength=0 снимает
	mux.HandleFunc("/override", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST only", http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var req struct {
			Symbol    string  `json:"symbol"`
			Direction string  `json:"direction"`
			Strength  float64 `json:"strength"`
		}
		if err := sonic.Unmarshal(body, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		if req.Strength <= 0 {
			overrides.ClearManual(req.Symbol)
			w.WriteHeader(http.StatusOK)
			return
		}

		dir := models.Direction(strings.ToUpper(req.Direction))
		if dir != models.DirectionLong && dir != models.DirectionShort {
			http.Error(w, "direction must be LONG or SHORT", http.StatusBadRequest)
			return
		}
		overrides.SetManual(req.Symbol, models.Override{Direction: dir, Strength: req.Strength})
		w.WriteHeader(http.StatusOK)
	})

	return mux
}

func RunHTTP(lc fx.Lifecycle, cfg *config.Config, state *service.State, mux *http.ServeMux) {
	port := cfg.Service.AdminPort
	if port == 0 {
		port = 8080
	}
	addr := fmt.Sprintf(":%d", port)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return err
			}
			go func() { _ = srv.Serve(ln) }()
			state.SetReady(true)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

func Module() fx.Option {
	return fx.Module("health",
		fx.Provide(
			service.NewState,
			NewMux,
		),
		// статус фида — через хуки клиента цен
		fx.Invoke(func(c *pricefeedsvc.Client, state *service.State) {
			c.SetHooks(state.SetFeedConnected, state.TouchPrice)
		}),
		fx.Invoke(RunHTTP),
	)
}
