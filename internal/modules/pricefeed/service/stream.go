package service

import (
	"context"
	"strconv"
	"time"
	"trade_executor/pkg/logger"

	"github.com/bytedance/sonic"
)

// Run — реконнект-цикл WS-тикеров. Подписка пересобирается, когда
// появляется новый наблюдаемый символ.
func (c *Client) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		syms := c.watched()
		if len(syms) == 0 {
			select {
			case <-ctx.Done():
				return
			case <-c.resub:
				continue
			case <-time.After(time.Second):
				continue
			}
		}

		c.runConn(ctx, syms)

		select {
		case <-ctx.Done():
			return
		default:
			time.Sleep(time.Second)
		}
	}
}

func (c *Client) runConn(ctx context.Context, syms []string) {
	logger.Info("[FEED] WS connect, символов: %d", len(syms))

	conn, _, err := c.wsDialer.Dial(c.cfg.OKX.WSURL, nil)
	if err != nil {
		logger.Error("[FEED] WS dial: %v", err)
		return
	}
	defer conn.Close()

	if c.onConn != nil {
		c.onConn(true)
		defer c.onConn(false)
	}

	args := make([]map[string]string, 0, len(syms))
	for _, s := range syms {
		args = append(args, map[string]string{
			"channel": "tickers",
			"instId":  s,
		})
	}
	if err := conn.WriteJSON(map[string]any{"op": "subscribe", "args": args}); err != nil {
		logger.Error("[FEED] WS subscribe: %v", err)
		return
	}

	// keepalive ping каждые 20s — иначе OKX рвёт соединение
	stopPing := make(chan struct{})
	defer close(stopPing)
	go func() {
		t := time.NewTicker(20 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stopPing:
				return
			case <-t.C:
				_ = conn.WriteJSON(map[string]string{"op": "ping"})
			}
		}
	}()

	// при новом символе проще переподключиться с полным списком
	go func() {
		select {
		case <-ctx.Done():
		case <-stopPing:
		case <-c.resub:
			_ = conn.Close()
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			logger.Error("[FEED] WS read: %v", err)
			return
		}

		var frame struct {
			Arg struct {
				Channel string `json:"channel"`
				InstID  string `json:"instId"`
			} `json:"arg"`
			Data []struct {
				Last string `json:"last"`
			} `json:"data"`
		}
		if err := sonic.Unmarshal(msg, &frame); err != nil {
			continue
		}
		if frame.Arg.Channel != "tickers" || len(frame.Data) == 0 {
			continue
		}

		px, err := strconv.ParseFloat(frame.Data[len(frame.Data)-1].Last, 64)
		if err != nil || px <= 0 {
			continue
		}
		c.store(frame.Arg.InstID, px)
	}
}
