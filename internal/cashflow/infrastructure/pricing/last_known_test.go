package pricing

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	cashflow "fuelstation-cloud/internal/cashflow/domain"
)

type scriptedSource struct {
	price decimal.Decimal
	err   error
	delay time.Duration
}

func (s *scriptedSource) PriceAt(ctx context.Context, _ string, _ time.Time) (decimal.Decimal, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return decimal.Zero, ctx.Err()
		}
	}
	return s.price, s.err
}

func TestLastKnownProviderFallsBack(t *testing.T) {
	source := &scriptedSource{price: decimal.RequireFromString("1.03")}
	provider, err := NewLastKnownProvider(source,
		WithTimeout(20*time.Millisecond),
		WithLogger(log.New(io.Discard, "", 0)),
	)
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	price, err := provider.PriceAt(ctx, "n-1", at)
	if err != nil || !price.Equal(decimal.RequireFromString("1.03")) {
		t.Fatalf("first lookup: price=%s err=%v", price, err)
	}

	source.delay = time.Second
	price, err = provider.PriceAt(ctx, "n-1", at)
	if err != nil {
		t.Fatalf("timeout must fall back: %v", err)
	}
	if !price.Equal(decimal.RequireFromString("1.03")) {
		t.Fatalf("fallback price: got %s", price)
	}

	source.delay = 0
	source.err = errors.New("db down")
	if _, err := provider.PriceAt(ctx, "n-2", at); !errors.Is(err, cashflow.ErrPriceUnavailable) {
		t.Fatalf("unknown nozzle without source: got %v", err)
	}
}

func TestFixedPriceProvider(t *testing.T) {
	if _, err := NewFixedPriceProvider(decimal.Zero); err == nil {
		t.Fatalf("expected error for zero price")
	}
	provider, err := NewFixedPriceProvider(decimal.NewFromInt(100))
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	price, _ := provider.PriceAt(context.Background(), "any", time.Now())
	if !price.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("price: got %s", price)
	}
}
