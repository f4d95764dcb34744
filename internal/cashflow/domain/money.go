package cashflow

import "github.com/shopspring/decimal"

// PaymentSplitVersion is the current schema version of PaymentSplit.
const PaymentSplitVersion = 1

// Tolerance is the largest rounding gap accepted between a split and its total.
var Tolerance = decimal.New(1, -2)

// RoundMoney rounds to cents, halves away from zero.
func RoundMoney(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(2)
}

// PaymentSplit divides a sale total across payment channels.
type PaymentSplit struct {
	Version int             `json:"version"`
	Cash    decimal.Decimal `json:"cash"`
	Online  decimal.Decimal `json:"online"`
	Credit  decimal.Decimal `json:"credit"`
}

// Sum returns cash + online + credit.
func (p PaymentSplit) Sum() decimal.Decimal {
	return p.Cash.Add(p.Online).Add(p.Credit)
}

// Normalize fills the schema version for callers that omit it.
func (p PaymentSplit) Normalize() PaymentSplit {
	if p.Version == 0 {
		p.Version = PaymentSplitVersion
	}
	return p
}

// Validate checks the split against a sale total.
func (p PaymentSplit) Validate(total decimal.Decimal) error {
	if p.Version != PaymentSplitVersion {
		return ErrUnsupportedSplitVersion
	}
	if p.Cash.IsNegative() || p.Online.IsNegative() || p.Credit.IsNegative() {
		return ErrNegativePayment
	}
	if p.Sum().Sub(total).Abs().GreaterThan(Tolerance) {
		return ErrPaymentSplitMismatch
	}
	return nil
}

// Negate returns the compensating split.
func (p PaymentSplit) Negate() PaymentSplit {
	return PaymentSplit{
		Version: p.Version,
		Cash:    p.Cash.Neg(),
		Online:  p.Online.Neg(),
		Credit:  p.Credit.Neg(),
	}
}

// Totals are the running counters a reading adds to its shift.
type Totals struct {
	Cash     decimal.Decimal
	Online   decimal.Decimal
	Credit   decimal.Decimal
	Litres   decimal.Decimal
	Sales    decimal.Decimal
	Readings int
}
