package notify

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"fuelstation-cloud/internal/discrepancy"
	masterdata "fuelstation-cloud/internal/masterdata/domain"
)

// StationReader loads station metadata.
type StationReader interface {
	Get(ctx context.Context, id string) (*masterdata.Station, error)
}

// Clock provides time for cooldown checks.
type Clock interface {
	Now() time.Time
}

type sendRecord struct {
	at   time.Time
	hash string
}

// Notifier renders discrepancy alerts and sends them through a channel.
type Notifier struct {
	stations     StationReader
	channel      Channel
	template     *Template
	clock        Clock
	mu           sync.Mutex
	sent         map[string]sendRecord
	cooldown     time.Duration
	dedupeWindow time.Duration
}

// Option configures the notifier.
type Option func(*Notifier)

// WithClock overrides the default clock.
func WithClock(clock Clock) Option {
	return func(n *Notifier) {
		if clock != nil {
			n.clock = clock
		}
	}
}

// WithStations resolves station names for the rendered message.
func WithStations(stations StationReader) Option {
	return func(n *Notifier) {
		n.stations = stations
	}
}

// WithCooldown sets a minimum interval between notifications for the same
// reference and severity.
func WithCooldown(interval time.Duration) Option {
	return func(n *Notifier) {
		if interval > 0 {
			n.cooldown = interval
		}
	}
}

// WithDedupeWindow suppresses identical notifications within the window.
func WithDedupeWindow(window time.Duration) Option {
	return func(n *Notifier) {
		if window > 0 {
			n.dedupeWindow = window
		}
	}
}

// NewNotifier constructs a discrepancy notifier.
func NewNotifier(channel Channel, template *Template, opts ...Option) (*Notifier, error) {
	if channel == nil {
		return nil, errors.New("discrepancy notifier: nil channel")
	}
	if template == nil {
		defaultTemplate, err := NewTemplate("")
		if err != nil {
			return nil, err
		}
		template = defaultTemplate
	}
	n := &Notifier{
		channel:  channel,
		template: template,
		clock:    systemClock{},
		sent:     make(map[string]sendRecord),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Notify implements discrepancy.Notifier. Suppressed repeats return nil.
func (n *Notifier) Notify(ctx context.Context, alert discrepancy.Alert) error {
	if n == nil || n.channel == nil {
		return errors.New("discrepancy notifier: not configured")
	}
	content, err := n.template.Render(n.buildTemplateData(ctx, alert))
	if err != nil {
		return err
	}
	key := notificationKey(alert)
	if !n.shouldSend(key, content) {
		return nil
	}
	if err := n.channel.Send(ctx, content); err != nil {
		return err
	}
	n.markSent(key, content)
	return nil
}

func (n *Notifier) buildTemplateData(ctx context.Context, alert discrepancy.Alert) TemplateData {
	stationName := alert.StationID
	if n.stations != nil && alert.StationID != "" {
		if station, err := n.stations.Get(ctx, alert.StationID); err == nil && station != nil && station.Name != "" {
			stationName = station.Name
		}
	}
	occurredAt := alert.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = n.clock.Now()
	}
	actor := alert.Actor
	if actor == "" {
		actor = "-"
	}
	return TemplateData{
		Station:       stationName,
		StationID:     alert.StationID,
		TenantID:      alert.TenantID,
		Stage:         string(alert.Stage),
		ReferenceID:   alert.ReferenceID,
		ReferenceType: alert.ReferenceType,
		Actor:         actor,
		Expected:      alert.Expected.StringFixed(2),
		Actual:        alert.Actual.StringFixed(2),
		Discrepancy:   alert.Discrepancy.StringFixed(2),
		Percent:       alert.Percent.StringFixed(2),
		Severity:      string(alert.Severity),
		SeverityLabel: severityLabel(alert.Severity),
		OccurredAt:    occurredAt.UTC().Format(time.RFC3339),
		Suggestion:    suggestionFor(alert),
	}
}

func severityLabel(severity discrepancy.Severity) string {
	switch severity {
	case discrepancy.SeverityCritical:
		return "Critical"
	case discrepancy.SeverityWarning:
		return "Warning"
	default:
		return string(severity)
	}
}

func suggestionFor(alert discrepancy.Alert) string {
	if alert.Severity == discrepancy.SeverityCritical {
		if alert.Stage == discrepancy.StageHandover {
			return "The handover chain is blocked. Recount the cash and resolve the dispute before depositing."
		}
		return "Recount the drawer with the attendant before the next shift starts."
	}
	if alert.Discrepancy.IsNegative() {
		return "More cash than expected. Check for unrecorded sales or missing readings."
	}
	return "Less cash than expected. Verify payment splits and pending readings."
}

func (n *Notifier) shouldSend(key, content string) bool {
	if n.cooldown <= 0 && n.dedupeWindow <= 0 {
		return true
	}
	now := n.clock.Now().UTC()
	hash := hashContent(content)

	n.mu.Lock()
	record, ok := n.sent[key]
	n.mu.Unlock()
	if !ok {
		return true
	}
	if n.cooldown > 0 && now.Sub(record.at) < n.cooldown {
		return false
	}
	if n.dedupeWindow > 0 && record.hash == hash && now.Sub(record.at) < n.dedupeWindow {
		return false
	}
	return true
}

func (n *Notifier) markSent(key, content string) {
	n.mu.Lock()
	n.sent[key] = sendRecord{
		at:   n.clock.Now().UTC(),
		hash: hashContent(content),
	}
	n.mu.Unlock()
}

func notificationKey(alert discrepancy.Alert) string {
	return alert.ReferenceID + "|" + string(alert.Severity)
}

func hashContent(content string) string {
	sum := sha1.Sum([]byte(content))
	return hex.EncodeToString(sum[:8])
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
