package application

import (
	"time"

	"github.com/shopspring/decimal"
)

// PeriodClosed is emitted once a station-day settlement is stored.
type PeriodClosed struct {
	SettlementID  string          `json:"settlement_id"`
	StationID     string          `json:"station_id"`
	BusinessDate  string          `json:"business_date"`
	TotalSales    decimal.Decimal `json:"total_sales"`
	CashTotal     decimal.Decimal `json:"cash_total"`
	FinalVariance decimal.Decimal `json:"final_variance"`
	SnapshotHash  string          `json:"snapshot_hash"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

func (PeriodClosed) EventName() string { return "settlement.period_closed.v1" }

func (e PeriodClosed) AggregateKey() string { return e.SettlementID }
