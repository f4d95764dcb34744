package discrepancy

import "github.com/shopspring/decimal"

// Severity grades how far an actual amount strays from its expectation.
type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Flagged reports whether the severity must be surfaced to a notifier.
func (s Severity) Flagged() bool {
	return s == SeverityWarning || s == SeverityCritical
}

// Epsilon is the absolute difference treated as an exact match.
var Epsilon = decimal.New(1, -2)

var hundred = decimal.NewFromInt(100)

// Classification is the outcome of comparing an expected and an actual amount.
type Classification struct {
	Expected    decimal.Decimal `json:"expected"`
	Actual      decimal.Decimal `json:"actual"`
	Discrepancy decimal.Decimal `json:"discrepancy"`
	Percent     decimal.Decimal `json:"percent"`
	Severity    Severity        `json:"severity"`
}

// Policy holds the tunable bands for one station.
type Policy struct {
	// WarningBandPct is a percentage of the expected amount, 1 means 1%.
	WarningBandPct decimal.Decimal
	// TolerableThreshold is the absolute discrepancy a handover may carry and still progress.
	TolerableThreshold decimal.Decimal
}

// DefaultPolicy returns a 1% warning band and an exact-match progression threshold.
func DefaultPolicy() Policy {
	return Policy{
		WarningBandPct:     decimal.NewFromInt(1),
		TolerableThreshold: decimal.Zero,
	}
}

// Classify compares amounts with the default policy.
func Classify(expected, actual decimal.Decimal) Classification {
	return DefaultPolicy().Classify(expected, actual)
}

// Classify grades actual against expected. Discrepancy is expected minus actual.
func (p Policy) Classify(expected, actual decimal.Decimal) Classification {
	diff := expected.Sub(actual)
	abs := diff.Abs()
	c := Classification{
		Expected:    expected,
		Actual:      actual,
		Discrepancy: diff,
		Percent:     decimal.Zero,
		Severity:    SeverityNone,
	}
	if !expected.IsZero() {
		c.Percent = abs.Div(expected.Abs()).Mul(hundred).Round(2)
	}
	if abs.LessThanOrEqual(Epsilon) {
		return c
	}
	band := expected.Abs().Mul(p.WarningBandPct).Div(hundred)
	if !expected.IsZero() && abs.LessThanOrEqual(band) {
		c.Severity = SeverityWarning
		return c
	}
	c.Severity = SeverityCritical
	return c
}

// Blocks reports whether a handover with this classification must be disputed.
func (p Policy) Blocks(c Classification) bool {
	if c.Severity == SeverityCritical {
		return true
	}
	return c.Discrepancy.Abs().GreaterThan(p.TolerableThreshold)
}
