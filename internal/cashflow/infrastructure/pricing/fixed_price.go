package pricing

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// FixedPriceProvider returns one price for every nozzle.
type FixedPriceProvider struct {
	price decimal.Decimal
}

// NewFixedPriceProvider constructs the provider.
func NewFixedPriceProvider(price decimal.Decimal) (*FixedPriceProvider, error) {
	if !price.IsPositive() {
		return nil, errors.New("price provider: price must be positive")
	}
	return &FixedPriceProvider{price: price}, nil
}

// PriceAt returns the configured fixed price.
func (p *FixedPriceProvider) PriceAt(ctx context.Context, nozzleID string, at time.Time) (decimal.Decimal, error) {
	_ = ctx
	_ = nozzleID
	_ = at
	return p.price, nil
}
