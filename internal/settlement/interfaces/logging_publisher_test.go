package interfaces

import (
	"bytes"
	"context"
	"log"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	settlementapp "fuelstation-cloud/internal/settlement/application"
)

func TestLoggingPublisher(t *testing.T) {
	var buf bytes.Buffer
	publisher := NewLoggingPublisher(log.New(&buf, "", 0))

	err := publisher.Publish(context.Background(), settlementapp.PeriodClosed{
		SettlementID:  "stl-1",
		StationID:     "st-1",
		BusinessDate:  "2024-03-10",
		TotalSales:    decimal.RequireFromString("1500"),
		CashTotal:     decimal.RequireFromString("1000"),
		FinalVariance: decimal.RequireFromString("-2.5"),
		SnapshotHash:  "abcdef0123456789",
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	line := buf.String()
	for _, want := range []string{"settlement.period_closed.v1", "settlement=stl-1", "sales=1500.00", "variance=-2.50", "hash=abcdef012345\n"} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in %q", want, line)
		}
	}

	buf.Reset()
	if err := publisher.Publish(context.Background(), struct{ ID string }{"x"}); err != nil {
		t.Fatalf("unknown events must not fail: %v", err)
	}
	if !strings.Contains(buf.String(), "ignored") {
		t.Fatalf("unknown event not reported: %q", buf.String())
	}
}
