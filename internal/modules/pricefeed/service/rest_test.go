package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"
	"trade_executor/internal/modules/config"
	"trade_executor/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	if err := logger.Init("pricefeed_test"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func newTestClient(baseURL string) *Client {
	cfg := &config.Config{}
	cfg.OKX.RESTBase = baseURL
	return NewClient(cfg)
}

func TestCurrentPriceFallsBackToREST(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v5/market/ticker", r.URL.Path)
		assert.Equal(t, "BTC-USDT-SWAP", r.URL.Query().Get("instId"))
		_, _ = w.Write([]byte(`{"code":"0","data":[{"last":"64210.5"}]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	px, err := c.CurrentPrice(context.Background(), "BTC-USDT-SWAP")
	require.NoError(t, err)
	assert.Equal(t, 64210.5, px)
}

func TestCurrentPricePrefersFreshTick(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("REST must not be called when WS tick is fresh")
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	c.store("BTC-USDT-SWAP", 50000)

	px, err := c.CurrentPrice(context.Background(), "BTC-USDT-SWAP")
	require.NoError(t, err)
	assert.Equal(t, 50000.0, px)
}

func TestCurrentPriceRejectsExchangeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":"51001","msg":"Instrument ID does not exist","data":[]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.CurrentPrice(context.Background(), "NOPE-USDT-SWAP")
	assert.Error(t, err)
}

func TestCandlesDecodesRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v5/market/candles", r.URL.Path)
		assert.Equal(t, "5m", r.URL.Query().Get("bar"))
		_, _ = w.Write([]byte(`{"code":"0","data":[["1717200000000","100","101","99","100.5","1"],["1717199700000","99","100","98","100","1"]]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	rows, err := c.Candles(context.Background(), "BTC-USDT-SWAP", "5m", 60)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "100.5", rows[0][4])
}

func TestWatchedTracksSymbols(t *testing.T) {
	c := newTestClient("http://127.0.0.1:0")
	c.ensureWatch("BTC-USDT-SWAP")
	c.ensureWatch("ETH-USDT-SWAP")
	c.ensureWatch("BTC-USDT-SWAP") // повтор не дублирует

	assert.ElementsMatch(t, []string{"BTC-USDT-SWAP", "ETH-USDT-SWAP"}, c.watched())
}

func TestStaleTickExpires(t *testing.T) {
	c := newTestClient("http://127.0.0.1:0")

	c.mu.Lock()
	c.last["BTC-USDT-SWAP"] = lastPx{price: 1, ts: time.Now().Add(-time.Minute)}
	c.mu.Unlock()

	_, ok := c.cached("BTC-USDT-SWAP")
	assert.False(t, ok)
}
