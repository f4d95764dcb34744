package metrics

import (
	"database/sql"
	"log"

	"github.com/prometheus/client_golang/prometheus"
)

func registerDBMetrics(db *sql.DB, logger *log.Logger) {
	gauges := []struct {
		name  string
		help  string
		query string
	}{
		{"shifts_active", "Shifts currently active", "SELECT COUNT(*) FROM shifts WHERE status = 'active'"},
		{"handovers_pending", "Handovers awaiting confirmation", "SELECT COUNT(*) FROM cash_handovers WHERE status = 'pending'"},
		{"handovers_disputed", "Handovers awaiting resolution", "SELECT COUNT(*) FROM cash_handovers WHERE status = 'disputed'"},
		{"event_outbox_pending", "Pending outbox records", "SELECT COUNT(*) FROM event_outbox WHERE status = 'pending'"},
		{"event_dlq_count", "Dead letter queue records", "SELECT COUNT(*) FROM dead_letter_events"},
	}
	for _, gauge := range gauges {
		query := gauge.query
		prometheus.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: metricPrefix + gauge.name,
				Help: gauge.help,
			},
			func() float64 {
				return queryCount(db, logger, query)
			},
		))
	}
}

func queryCount(db *sql.DB, logger *log.Logger, query string) float64 {
	if db == nil {
		return 0
	}
	var count int64
	if err := db.QueryRow(query).Scan(&count); err != nil {
		if logger != nil {
			logger.Printf("metrics query failed: %v", err)
		}
		return 0
	}
	if count < 0 {
		return 0
	}
	return float64(count)
}
