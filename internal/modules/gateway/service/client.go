package service

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"net/http"
	"strings"
	"time"
	"trade_executor/internal/modules/config"

	"github.com/pkg/errors"
)

// Client — приватный REST OKX: маркет-ордера на открытие и закрытие.
type Client struct {
	cfg  *config.Config
	http *http.Client

	apiKey    string
	apiSecret string
	passph    string
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		cfg:       cfg,
		http:      &http.Client{Timeout: 10 * time.Second},
		apiKey:    cfg.OKX.APIKey,
		apiSecret: cfg.OKX.APISecret,
		passph:    cfg.OKX.Passphrase,
	}
}

func (c *Client) sign(ts, method, requestPath, body string) string {
	msg := ts + strings.ToUpper(method) + requestPath + body
	h := hmac.New(sha256.New, []byte(c.apiSecret))
	h.Write([]byte(msg))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func (c *Client) doSigned(ctx context.Context, method, requestPath string, payload []byte) ([]byte, error) {
	ts := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")

	var body io.Reader
	if len(payload) > 0 {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.OKX.RESTBase+requestPath, body)
	if err != nil {
		return nil, errors.Wrap(err, "new request")
	}

	req.Header.Set("OK-ACCESS-KEY", c.apiKey)
	req.Header.Set("OK-ACCESS-SIGN", c.sign(ts, method, requestPath, string(payload)))
	req.Header.Set("OK-ACCESS-TIMESTAMP", ts)
	req.Header.Set("OK-ACCESS-PASSPHRASE", c.passph)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "do")
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return nil, errors.Errorf("http %d: %s", resp.StatusCode, string(data))
	}
	return data, nil
}
