package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "fuelstation_"

	resultSuccess  = "success"
	resultError    = "error"
	resultRejected = "rejected"
	resultFallback = "fallback"
)

var (
	registerOnce sync.Once

	readingTotal   *prometheus.CounterVec
	readingLatency *prometheus.HistogramVec

	shiftTransitions *prometheus.CounterVec

	handoverTransitions *prometheus.CounterVec
	handoverLatency     *prometheus.HistogramVec

	discrepancyTotal  *prometheus.CounterVec
	notificationTotal *prometheus.CounterVec

	priceLookupTotal *prometheus.CounterVec

	settlementCloseTotal    *prometheus.CounterVec
	settlementCloseLatency  *prometheus.HistogramVec
	settlementExportTotal   *prometheus.CounterVec
	settlementExportLatency *prometheus.HistogramVec

	outboxPublishTotal    *prometheus.CounterVec
	outboxPublishLatency  *prometheus.HistogramVec
	outboxDispatchTotal   *prometheus.CounterVec
	outboxDispatchLatency *prometheus.HistogramVec
	outboxDispatchRecords *prometheus.CounterVec
	consumerLag           *prometheus.GaugeVec
)

// Init registers observability metrics and DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		readingTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "reading_record_total",
				Help: "Total meter reading submissions by kind and result",
			},
			[]string{"kind", "result"},
		)
		readingLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "reading_record_latency_seconds",
				Help:    "Meter reading submission latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		shiftTransitions = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "shift_transitions_total",
				Help: "Total shift lifecycle transitions by transition and result",
			},
			[]string{"transition", "result"},
		)

		handoverTransitions = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "handover_transitions_total",
				Help: "Total handover transitions by chain type and resulting status",
			},
			[]string{"type", "status"},
		)
		handoverLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "handover_transition_latency_seconds",
				Help:    "Handover confirm/resolve latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "result"},
		)

		discrepancyTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "discrepancy_classified_total",
				Help: "Total discrepancy classifications by stage and severity",
			},
			[]string{"stage", "severity"},
		)
		notificationTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "discrepancy_notifications_total",
				Help: "Total discrepancy notification deliveries by result",
			},
			[]string{"result"},
		)

		priceLookupTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "price_lookup_total",
				Help: "Total fuel price lookups by result",
			},
			[]string{"result"},
		)

		settlementCloseTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "settlement_close_total",
				Help: "Total period close attempts by result",
			},
			[]string{"result"},
		)
		settlementCloseLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "settlement_close_latency_seconds",
				Help:    "Period close latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		settlementExportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "settlement_export_total",
				Help: "Total settlement export operations by format and result",
			},
			[]string{"format", "result"},
		)
		settlementExportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "settlement_export_latency_seconds",
				Help:    "Settlement export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		outboxPublishTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "outbox_publish_total",
				Help: "Total outbox publish operations by result",
			},
			[]string{"result"},
		)
		outboxPublishLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "outbox_publish_latency_seconds",
				Help:    "Outbox publish latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		outboxDispatchTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "outbox_dispatch_total",
				Help: "Total outbox dispatch runs by result",
			},
			[]string{"result"},
		)
		outboxDispatchLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "outbox_dispatch_latency_seconds",
				Help:    "Outbox dispatch run latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		outboxDispatchRecords = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "outbox_dispatch_records_total",
				Help: "Total outbox records handled by outcome",
			},
			[]string{"outcome"},
		)
		consumerLag = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "event_consumer_lag_seconds",
				Help: "Consumer processing lag in seconds",
			},
			[]string{"consumer"},
		)

		prometheus.MustRegister(
			readingTotal,
			readingLatency,
			shiftTransitions,
			handoverTransitions,
			handoverLatency,
			discrepancyTotal,
			notificationTotal,
			priceLookupTotal,
			settlementCloseTotal,
			settlementCloseLatency,
			settlementExportTotal,
			settlementExportLatency,
			outboxPublishTotal,
			outboxPublishLatency,
			outboxDispatchTotal,
			outboxDispatchLatency,
			outboxDispatchRecords,
			consumerLag,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveReading records a reading submission.
func ObserveReading(kind, result string, duration time.Duration) {
	if kind == "" {
		kind = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if readingTotal != nil {
		readingTotal.WithLabelValues(kind, result).Inc()
	}
	if readingLatency != nil {
		readingLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncShiftTransition counts a start, end or cancel attempt.
func IncShiftTransition(transition, result string) {
	if transition == "" {
		transition = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if shiftTransitions != nil {
		shiftTransitions.WithLabelValues(transition, result).Inc()
	}
}

// IncHandoverTransition counts a handover reaching a status.
func IncHandoverTransition(handoverType, status string) {
	if handoverType == "" {
		handoverType = "unknown"
	}
	if status == "" {
		status = "unknown"
	}
	if handoverTransitions != nil {
		handoverTransitions.WithLabelValues(handoverType, status).Inc()
	}
}

// ObserveHandoverOperation records confirm/resolve latency.
func ObserveHandoverOperation(operation, result string, duration time.Duration) {
	if operation == "" {
		operation = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if handoverLatency != nil {
		handoverLatency.WithLabelValues(operation, result).Observe(duration.Seconds())
	}
}

// IncDiscrepancy counts a classification.
func IncDiscrepancy(stage, severity string) {
	if stage == "" {
		stage = "unknown"
	}
	if severity == "" {
		severity = "unknown"
	}
	if discrepancyTotal != nil {
		discrepancyTotal.WithLabelValues(stage, severity).Inc()
	}
}

// IncNotification counts a notification delivery attempt.
func IncNotification(result string) {
	if result == "" {
		result = resultSuccess
	}
	if notificationTotal != nil {
		notificationTotal.WithLabelValues(result).Inc()
	}
}

// IncPriceLookup counts a price lookup outcome.
func IncPriceLookup(result string) {
	if result == "" {
		result = resultSuccess
	}
	if priceLookupTotal != nil {
		priceLookupTotal.WithLabelValues(result).Inc()
	}
}

// ObserveSettlementClose records period close latency and result.
func ObserveSettlementClose(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if settlementCloseTotal != nil {
		settlementCloseTotal.WithLabelValues(result).Inc()
	}
	if settlementCloseLatency != nil {
		settlementCloseLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObserveSettlementExport records export latency and result.
func ObserveSettlementExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if settlementExportTotal != nil {
		settlementExportTotal.WithLabelValues(format, result).Inc()
	}
	if settlementExportLatency != nil {
		settlementExportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// ObserveOutboxPublish records outbox insert latency and result.
func ObserveOutboxPublish(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if outboxPublishTotal != nil {
		outboxPublishTotal.WithLabelValues(result).Inc()
	}
	if outboxPublishLatency != nil {
		outboxPublishLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObserveOutboxDispatch records a dispatch run.
func ObserveOutboxDispatch(result string, duration time.Duration, sent, failed, dlq int) {
	if result == "" {
		result = resultSuccess
	}
	if outboxDispatchTotal != nil {
		outboxDispatchTotal.WithLabelValues(result).Inc()
	}
	if outboxDispatchLatency != nil {
		outboxDispatchLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
	if outboxDispatchRecords != nil {
		if sent > 0 {
			outboxDispatchRecords.WithLabelValues("sent").Add(float64(sent))
		}
		if failed > 0 {
			outboxDispatchRecords.WithLabelValues("failed").Add(float64(failed))
		}
		if dlq > 0 {
			outboxDispatchRecords.WithLabelValues("dlq").Add(float64(dlq))
		}
	}
}

// ObserveConsumerLag sets consumer lag in seconds.
func ObserveConsumerLag(consumer string, lag time.Duration) {
	if consumer == "" {
		consumer = "unknown"
	}
	if lag < 0 {
		lag = 0
	}
	if consumerLag != nil {
		consumerLag.WithLabelValues(consumer).Set(lag.Seconds())
	}
}

// Exported constants for callers.
const (
	ResultSuccess  = resultSuccess
	ResultError    = resultError
	ResultRejected = resultRejected
	ResultFallback = resultFallback
)
