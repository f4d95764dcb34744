package discrepancy

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"fuelstation-cloud/internal/observability/metrics"
)

// Stage names the reconciliation step that produced a classification.
type Stage string

const (
	StageShiftEnd Stage = "shift_end"
	StageHandover Stage = "handover"
)

// Alert is delivered to the notification collaborator for flagged classifications.
type Alert struct {
	TenantID      string
	StationID     string
	Stage         Stage
	ReferenceID   string
	ReferenceType string
	Actor         string
	Classification
	OccurredAt time.Time
}

// Message renders a one-line human summary of the alert.
func (a Alert) Message() string {
	subject := string(a.Stage)
	if a.ReferenceType != "" {
		subject = subject + "/" + a.ReferenceType
	}
	return fmt.Sprintf("%s discrepancy %s at station %s: expected %s, actual %s, difference %s (%s%%)",
		subject,
		a.Severity,
		a.StationID,
		a.Expected.StringFixed(2),
		a.Actual.StringFixed(2),
		a.Discrepancy.StringFixed(2),
		a.Percent.StringFixed(2),
	)
}

// Notifier delivers discrepancy alerts.
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// Detector applies per-station policy and reports flagged variances.
type Detector struct {
	config   Config
	notifier Notifier
	logger   *log.Logger
	timeout  time.Duration
	sync     bool
	wg       sync.WaitGroup
}

// Option configures the detector.
type Option func(*Detector)

// WithNotifier sets the alert notifier.
func WithNotifier(notifier Notifier) Option {
	return func(d *Detector) {
		d.notifier = notifier
	}
}

// WithLogger sets the logger for delivery failures.
func WithLogger(logger *log.Logger) Option {
	return func(d *Detector) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithTimeout bounds each notification attempt.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Detector) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithSynchronousDelivery makes Report block until the notifier returns.
func WithSynchronousDelivery() Option {
	return func(d *Detector) {
		d.sync = true
	}
}

// NewDetector constructs a detector.
func NewDetector(cfg Config, opts ...Option) *Detector {
	d := &Detector{
		config:  cfg,
		logger:  log.Default(),
		timeout: cfg.Notify.Timeout,
	}
	if d.timeout <= 0 {
		d.timeout = 5 * time.Second
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Policy returns the effective policy for a station.
func (d *Detector) Policy(stationID string) Policy {
	if d == nil {
		return DefaultPolicy()
	}
	return d.config.PolicyFor(stationID)
}

// Classify grades actual against expected using the station's policy.
func (d *Detector) Classify(stationID string, expected, actual decimal.Decimal) Classification {
	return d.Policy(stationID).Classify(expected, actual)
}

// Blocks reports whether the classification must stop handover progression.
func (d *Detector) Blocks(stationID string, c Classification) bool {
	return d.Policy(stationID).Blocks(c)
}

// Report counts the classification and notifies on warning or critical.
// Delivery never fails the caller.
func (d *Detector) Report(ctx context.Context, alert Alert) {
	if d == nil {
		return
	}
	metrics.IncDiscrepancy(string(alert.Stage), string(alert.Severity))
	if !alert.Severity.Flagged() || d.notifier == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if d.sync {
		d.deliver(ctx, alert)
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.deliver(ctx, alert)
	}()
}

// Wait blocks until in-flight notifications finish.
func (d *Detector) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}

func (d *Detector) deliver(ctx context.Context, alert Alert) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	if err := d.notifier.Notify(ctx, alert); err != nil {
		metrics.IncNotification(metrics.ResultError)
		d.logger.Printf("discrepancy notify failed: station=%s ref=%s severity=%s err=%v",
			alert.StationID, alert.ReferenceID, alert.Severity, err)
		return
	}
	metrics.IncNotification(metrics.ResultSuccess)
}
