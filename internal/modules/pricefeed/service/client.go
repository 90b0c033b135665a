package service

import (
	"net/http"
	"sync"
	"time"
	"trade_executor/internal/modules/config"

	"github.com/gorilla/websocket"
)

// насколько старому WS-тику ещё верим, прежде чем идти в REST
const tickTTL = 15 * time.Second

type lastPx struct {
	price float64
	ts    time.Time
}

// Client — цены OKX: WS-тикеры с кешем последней цены + REST-фолбэк.
type Client struct {
	cfg *config.Config

	http     *http.Client
	wsDialer *websocket.Dialer

	mu    sync.RWMutex
	last  map[string]lastPx
	watch map[string]struct{}

	// пинок стримеру пересобрать подписку
	resub chan struct{}

	// хуки для health-статуса, nil-safe
	onConn func(bool)
	onTick func(time.Time)
}

// SetHooks вешает колбэки состояния соединения и последнего тика.
// Звать до Run.
func (c *Client) SetHooks(onConn func(bool), onTick func(time.Time)) {
	c.onConn = onConn
	c.onTick = onTick
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		cfg:      cfg,
		http:     &http.Client{Timeout: 10 * time.Second},
		wsDialer: &websocket.Dialer{},
		last:     make(map[string]lastPx),
		watch:    make(map[string]struct{}),
		resub:    make(chan struct{}, 1),
	}
}

// ensureWatch добавляет символ в WS-подписку (лениво, на первом запросе).
func (c *Client) ensureWatch(symbol string) {
	c.mu.Lock()
	_, ok := c.watch[symbol]
	if !ok {
		c.watch[symbol] = struct{}{}
	}
	c.mu.Unlock()

	if !ok {
		select {
		case c.resub <- struct{}{}:
		default:
		}
	}
}

func (c *Client) cached(symbol string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	px, ok := c.last[symbol]
	if !ok || time.Since(px.ts) > tickTTL {
		return 0, false
	}
	return px.price, true
}

func (c *Client) store(symbol string, price float64) {
	now := time.Now()
	c.mu.Lock()
	c.last[symbol] = lastPx{price: price, ts: now}
	c.mu.Unlock()
	if c.onTick != nil {
		c.onTick(now)
	}
}

func (c *Client) watched() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.watch))
	for s := range c.watch {
		out = append(out, s)
	}
	return out
}
