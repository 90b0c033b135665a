package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
)

// CurrentPrice — свежий WS-тик, иначе REST. Ошибка здесь не фатальна:
// сэмплер переживёт пропуск и спросит на следующем интервале.
func (c *Client) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	c.ensureWatch(symbol)

	if px, ok := c.cached(symbol); ok {
		return px, nil
	}
	return c.restTicker(ctx, symbol)
}

func (c *Client) restTicker(ctx context.Context, symbol string) (float64, error) {
	url := fmt.Sprintf("%s/api/v5/market/ticker?instId=%s", c.cfg.OKX.RESTBase, symbol)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, errors.Wrap(err, "ticker request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, errors.Wrap(err, "ticker do")
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return 0, errors.Errorf("ticker http %d: %s", resp.StatusCode, string(body))
	}

	var wrap struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
		Data []struct {
			Last string `json:"last"`
		} `json:"data"`
	}
	if err := sonic.Unmarshal(body, &wrap); err != nil {
		return 0, errors.Wrap(err, "ticker decode")
	}
	if wrap.Code != "0" || len(wrap.Data) == 0 {
		return 0, errors.Errorf("ticker error: code=%s msg=%s", wrap.Code, wrap.Msg)
	}

	px, err := strconv.ParseFloat(wrap.Data[0].Last, 64)
	if err != nil || px <= 0 {
		return 0, errors.Errorf("ticker bad price %q", wrap.Data[0].Last)
	}

	c.store(symbol, px)
	return px, nil
}

// Candles — закрытые свечи для override-фида: [][]string формата OKX.
func (c *Client) Candles(ctx context.Context, symbol, bar string, limit int) ([][]string, error) {
	url := fmt.Sprintf("%s/api/v5/market/candles?instId=%s&bar=%s&limit=%d",
		c.cfg.OKX.RESTBase, symbol, bar, limit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "candles request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "candles do")
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return nil, errors.Errorf("candles http %d: %s", resp.StatusCode, string(body))
	}

	var wrap struct {
		Code string     `json:"code"`
		Data [][]string `json:"data"`
	}
	if err := sonic.Unmarshal(body, &wrap); err != nil {
		return nil, errors.Wrap(err, "candles decode")
	}
	if wrap.Code != "0" {
		return nil, errors.Errorf("candles error: code=%s", wrap.Code)
	}
	return wrap.Data, nil
}
