package pricing

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	cashflow "fuelstation-cloud/internal/cashflow/domain"
	"fuelstation-cloud/internal/observability/metrics"
)

// Source is a price lookup that may be slow or unavailable.
type Source interface {
	PriceAt(ctx context.Context, nozzleID string, at time.Time) (decimal.Decimal, error)
}

// LastKnownProvider bounds a source with a timeout and falls back to the
// last price it returned for the nozzle.
type LastKnownProvider struct {
	source  Source
	timeout time.Duration
	logger  *log.Logger

	mu        sync.RWMutex
	lastKnown map[string]decimal.Decimal
}

// LastKnownOption configures the provider.
type LastKnownOption func(*LastKnownProvider)

// WithTimeout bounds each source lookup.
func WithTimeout(timeout time.Duration) LastKnownOption {
	return func(p *LastKnownProvider) {
		if timeout > 0 {
			p.timeout = timeout
		}
	}
}

// WithLogger sets the fallback logger.
func WithLogger(logger *log.Logger) LastKnownOption {
	return func(p *LastKnownProvider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewLastKnownProvider wraps source.
func NewLastKnownProvider(source Source, opts ...LastKnownOption) (*LastKnownProvider, error) {
	if source == nil {
		return nil, errors.New("last known price: nil source")
	}
	p := &LastKnownProvider{
		source:    source,
		timeout:   2 * time.Second,
		logger:    log.Default(),
		lastKnown: make(map[string]decimal.Decimal),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// PriceAt asks the source and remembers the answer. A source failure returns
// the remembered price when one exists.
func (p *LastKnownProvider) PriceAt(ctx context.Context, nozzleID string, at time.Time) (decimal.Decimal, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	price, err := p.source.PriceAt(lookupCtx, nozzleID, at)
	if err == nil {
		p.mu.Lock()
		p.lastKnown[nozzleID] = price
		p.mu.Unlock()
		metrics.IncPriceLookup(metrics.ResultSuccess)
		return price, nil
	}

	p.mu.RLock()
	cached, ok := p.lastKnown[nozzleID]
	p.mu.RUnlock()
	if !ok {
		metrics.IncPriceLookup(metrics.ResultError)
		if errors.Is(err, cashflow.ErrPriceUnavailable) {
			return decimal.Zero, err
		}
		return decimal.Zero, errors.Join(cashflow.ErrPriceUnavailable, err)
	}
	metrics.IncPriceLookup(metrics.ResultFallback)
	p.logger.Printf("price lookup failed, using last known: nozzle=%s price=%s err=%v", nozzleID, cached, err)
	return cached, nil
}
