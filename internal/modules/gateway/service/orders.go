package service

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"trade_executor/internal/models"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
)

// Place открывает позицию маркетом. priceHint используется как фолбэк,
// если биржа не вернула цену исполнения.
func (c *Client) Place(ctx context.Context, symbol string, direction models.Direction, quantity, priceHint float64) (models.Fill, error) {
	side, posSide := orderSides(direction, false)
	return c.marketOrder(ctx, symbol, side, posSide, quantity, priceHint)
}

// Close закрывает quantity маркетом. Сторона — противоположная позиции.
func (c *Client) Close(ctx context.Context, symbol string, direction models.Direction, quantity float64) (models.Fill, error) {
	side, posSide := orderSides(direction, true)
	return c.marketOrder(ctx, symbol, side, posSide, quantity, 0)
}

func orderSides(direction models.Direction, closing bool) (side, posSide string) {
	posSide = "long"
	side = "buy"
	if direction == models.DirectionShort {
		posSide = "short"
		side = "sell"
	}
	if closing {
		if side == "buy" {
			side = "sell"
		} else {
			side = "buy"
		}
	}
	return side, posSide
}

func (c *Client) marketOrder(ctx context.Context, symbol, side, posSide string, quantity, priceHint float64) (models.Fill, error) {
	if quantity <= 0 {
		return models.Fill{}, errors.New("marketOrder: quantity <= 0")
	}

	body := map[string]string{
		"instId":  symbol,
		"tdMode":  "cross",
		"side":    side,
		"posSide": posSide,
		"ordType": "market",
		"sz":      strconv.FormatFloat(quantity, 'f', -1, 64),
	}

	payload, err := sonic.Marshal(body)
	if err != nil {
		return models.Fill{}, errors.Wrap(err, "marketOrder marshal")
	}

	const requestPath = "/api/v5/trade/order"
	data, err := c.doSigned(ctx, http.MethodPost, requestPath, payload)
	if err != nil {
		return models.Fill{}, errors.Wrap(err, "marketOrder")
	}

	var r struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
		Data []struct {
			OrdId string `json:"ordId"`
			SCode string `json:"sCode"`
			SMsg  string `json:"sMsg"`
		} `json:"data"`
	}
	if err := sonic.Unmarshal(data, &r); err != nil {
		return models.Fill{}, errors.Wrapf(err, "marketOrder decode; body=%s", string(data))
	}
	if len(r.Data) > 0 && r.Data[0].SCode != "0" {
		return models.Fill{}, errors.Errorf("marketOrder rejected: sCode=%s sMsg=%s", r.Data[0].SCode, r.Data[0].SMsg)
	}
	if r.Code != "0" || len(r.Data) == 0 || r.Data[0].OrdId == "" {
		return models.Fill{}, errors.Errorf("marketOrder error: code=%s msg=%s", r.Code, r.Msg)
	}

	ordID := r.Data[0].OrdId

	// уточняем цену исполнения; не критично — есть priceHint
	fillPx, err := c.orderAvgPrice(ctx, symbol, ordID)
	if err != nil || fillPx <= 0 {
		fillPx = priceHint
	}

	return models.Fill{Price: fillPx, Quantity: quantity, OrderID: ordID}, nil
}

func (c *Client) orderAvgPrice(ctx context.Context, symbol, ordID string) (float64, error) {
	requestPath := fmt.Sprintf("/api/v5/trade/order?instId=%s&ordId=%s",
		url.QueryEscape(symbol), url.QueryEscape(ordID))

	data, err := c.doSigned(ctx, http.MethodGet, requestPath, nil)
	if err != nil {
		return 0, err
	}

	var r struct {
		Code string `json:"code"`
		Data []struct {
			AvgPx string `json:"avgPx"`
		} `json:"data"`
	}
	if err := sonic.Unmarshal(data, &r); err != nil {
		return 0, err
	}
	if r.Code != "0" || len(r.Data) == 0 {
		return 0, errors.Errorf("orderAvgPrice: code=%s", r.Code)
	}
	return strconv.ParseFloat(r.Data[0].AvgPx, 64)
}
