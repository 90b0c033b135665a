package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"trade_executor/internal/models"
	"trade_executor/internal/modules/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFeed struct {
	price float64
	err   error
}

func (f *stubFeed) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	return f.price, f.err
}

func TestPaperFillsAtFeedPrice(t *testing.T) {
	p := NewPaper(&stubFeed{price: 100.5})

	fill, err := p.Place(context.Background(), "BTC-USDT-SWAP", models.DirectionLong, 2, 99)
	require.NoError(t, err)
	assert.Equal(t, 100.5, fill.Price)
	assert.Equal(t, 2.0, fill.Quantity)
	assert.NotEmpty(t, fill.OrderID)

	// id ордеров монотонные
	fill2, err := p.Close(context.Background(), "BTC-USDT-SWAP", models.DirectionLong, 2)
	require.NoError(t, err)
	assert.NotEqual(t, fill.OrderID, fill2.OrderID)
}

func TestPaperFallsBackToHint(t *testing.T) {
	p := NewPaper(&stubFeed{err: assert.AnError})

	fill, err := p.Place(context.Background(), "BTC-USDT-SWAP", models.DirectionShort, 1, 99.5)
	require.NoError(t, err)
	assert.Equal(t, 99.5, fill.Price)

	// ни фида, ни подсказки — ордер невозможен
	_, err = p.Close(context.Background(), "BTC-USDT-SWAP", models.DirectionShort, 1)
	assert.Error(t, err)
}

func TestOrderSides(t *testing.T) {
	side, posSide := orderSides(models.DirectionLong, false)
	assert.Equal(t, "buy", side)
	assert.Equal(t, "long", posSide)

	side, posSide = orderSides(models.DirectionLong, true)
	assert.Equal(t, "sell", side)
	assert.Equal(t, "long", posSide)

	side, posSide = orderSides(models.DirectionShort, false)
	assert.Equal(t, "sell", side)
	assert.Equal(t, "short", posSide)

	side, posSide = orderSides(models.DirectionShort, true)
	assert.Equal(t, "buy", side)
	assert.Equal(t, "short", posSide)
}

func TestSignMatchesReference(t *testing.T) {
	cfg := &config.Config{}
	cfg.OKX.APISecret = "secret"
	c := NewClient(cfg)

	// подпись детерминирована и зависит от каждого компонента
	s1 := c.sign("2025-06-01T12:00:00.000Z", "POST", "/api/v5/trade/order", `{"a":1}`)
	s2 := c.sign("2025-06-01T12:00:00.000Z", "POST", "/api/v5/trade/order", `{"a":1}`)
	s3 := c.sign("2025-06-01T12:00:00.001Z", "POST", "/api/v5/trade/order", `{"a":1}`)
	assert.Equal(t, s1, s2)
	assert.NotEqual(t, s1, s3)
}

func TestMarketOrderRejectedBySCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v5/trade/order", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("OK-ACCESS-SIGN"))
		_, _ = w.Write([]byte(`{"code":"1","msg":"","data":[{"ordId":"","sCode":"51008","sMsg":"insufficient balance"}]}`))
	}))
	defer srv.Close()

	cfg := &config.Config{}
	cfg.OKX.RESTBase = srv.URL
	c := NewClient(cfg)

	_, err := c.Place(context.Background(), "BTC-USDT-SWAP", models.DirectionLong, 1, 100)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "51008")
}

func TestMarketOrderUsesHintWhenAvgPriceMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			_, _ = w.Write([]byte(`{"code":"0","msg":"","data":[{"ordId":"123","sCode":"0","sMsg":""}]}`))
			return
		}
		// запрос статуса ордера падает — работаем от подсказки
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := &config.Config{}
	cfg.OKX.RESTBase = srv.URL
	c := NewClient(cfg)

	fill, err := c.Place(context.Background(), "BTC-USDT-SWAP", models.DirectionLong, 1, 100.25)
	require.NoError(t, err)
	assert.Equal(t, "123", fill.OrderID)
	assert.Equal(t, 100.25, fill.Price)
}
