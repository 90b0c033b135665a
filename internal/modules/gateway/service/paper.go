package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"trade_executor/internal/models"
	samplersvc "trade_executor/internal/modules/sampler/service"

	"github.com/pkg/errors"
)

// Paper — бумажный гейтвей: исполняет по текущей цене фида,
// на биржу ничего не шлёт.
type Paper struct {
	feed samplersvc.PriceFeed
	seq  atomic.Int64
}

func NewPaper(feed samplersvc.PriceFeed) *Paper {
	return &Paper{feed: feed}
}

func (p *Paper) Place(ctx context.Context, symbol string, direction models.Direction, quantity, priceHint float64) (models.Fill, error) {
	return p.fill(ctx, symbol, quantity, priceHint)
}

func (p *Paper) Close(ctx context.Context, symbol string, direction models.Direction, quantity float64) (models.Fill, error) {
	return p.fill(ctx, symbol, quantity, 0)
}

func (p *Paper) fill(ctx context.Context, symbol string, quantity, priceHint float64) (models.Fill, error) {
	if quantity <= 0 {
		return models.Fill{}, errors.New("paper: quantity <= 0")
	}

	px, err := p.feed.CurrentPrice(ctx, symbol)
	if err != nil || px <= 0 {
		if priceHint <= 0 {
			return models.Fill{}, errors.Wrap(err, "paper: no price")
		}
		px = priceHint
	}

	return models.Fill{
		Price:    px,
		Quantity: quantity,
		OrderID:  fmt.Sprintf("paper-%d", p.seq.Add(1)),
	}, nil
}
