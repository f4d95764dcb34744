package pricing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	cashflow "fuelstation-cloud/internal/cashflow/domain"
)

const (
	defaultFuelPricesTable = "fuel_prices"
	defaultNozzlesTable    = "nozzles"
)

// FuelPriceProvider resolves the unit price in force for a nozzle's station
// and fuel type.
type FuelPriceProvider struct {
	db           *sql.DB
	pricesTable  string
	nozzlesTable string
}

// FuelPriceOption configures the provider.
type FuelPriceOption func(*FuelPriceProvider)

// WithFuelPricesTable overrides the prices table name.
func WithFuelPricesTable(table string) FuelPriceOption {
	return func(p *FuelPriceProvider) {
		if table != "" {
			p.pricesTable = table
		}
	}
}

// WithNozzlesTable overrides the nozzles table name.
func WithNozzlesTable(table string) FuelPriceOption {
	return func(p *FuelPriceProvider) {
		if table != "" {
			p.nozzlesTable = table
		}
	}
}

// NewFuelPriceProvider constructs a provider.
func NewFuelPriceProvider(db *sql.DB, opts ...FuelPriceOption) *FuelPriceProvider {
	p := &FuelPriceProvider{
		db:           db,
		pricesTable:  defaultFuelPricesTable,
		nozzlesTable: defaultNozzlesTable,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PriceAt returns the latest price effective at or before at.
func (p *FuelPriceProvider) PriceAt(ctx context.Context, nozzleID string, at time.Time) (decimal.Decimal, error) {
	if p == nil || p.db == nil {
		return decimal.Zero, errors.New("fuel price provider: nil db")
	}
	if nozzleID == "" {
		return decimal.Zero, errors.New("fuel price provider: empty nozzle id")
	}
	if at.IsZero() {
		return decimal.Zero, errors.New("fuel price provider: invalid timestamp")
	}

	query := fmt.Sprintf(`
SELECT p.price
FROM %s p
JOIN %s n ON n.station_id = p.station_id AND n.fuel_type = p.fuel_type
WHERE n.id = $1 AND p.effective_from <= $2
ORDER BY p.effective_from DESC
LIMIT 1`, p.pricesTable, p.nozzlesTable)

	var price decimal.Decimal
	if err := p.db.QueryRowContext(ctx, query, nozzleID, at.UTC()).Scan(&price); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, cashflow.ErrPriceUnavailable
		}
		return decimal.Zero, err
	}
	return price, nil
}

// SetPrice records a price for a station and fuel type from effectiveFrom on.
// Re-running with the same effectiveFrom replaces the price.
func (p *FuelPriceProvider) SetPrice(ctx context.Context, stationID, fuelType string, price decimal.Decimal, effectiveFrom time.Time) error {
	if p == nil || p.db == nil {
		return errors.New("fuel price provider: nil db")
	}
	if stationID == "" || fuelType == "" {
		return errors.New("fuel price provider: station and fuel type are required")
	}
	if !price.IsPositive() {
		return errors.New("fuel price provider: price must be positive")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (station_id, fuel_type, price, effective_from)
VALUES ($1, $2, $3, $4)
ON CONFLICT (station_id, fuel_type, effective_from) DO UPDATE SET price = EXCLUDED.price`, p.pricesTable)
	_, err := p.db.ExecContext(ctx, query, stationID, fuelType, price, effectiveFrom.UTC())
	return err
}
