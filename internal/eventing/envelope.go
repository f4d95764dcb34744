package eventing

import (
	"encoding/json"
	"errors"
	"reflect"
	"time"

	"fuelstation-cloud/internal/eventbus"
)

// CurrentSchemaVersion is stamped on envelopes built by this service.
const CurrentSchemaVersion = 1

// Envelope is the stored and delivered form of a domain event.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	OccurredAt    time.Time       `json:"occurred_at"`
	CorrelationID string          `json:"correlation_id"`
	CausationID   string          `json:"causation_id,omitempty"`
	TenantID      string          `json:"tenant_id"`
	StationID     string          `json:"station_id"`
	AggregateKey  string          `json:"aggregate_key,omitempty"`
	SchemaVersion int             `json:"schema_version"`
	Payload       json.RawMessage `json:"payload"`
}

// Meta provides envelope overrides.
type Meta struct {
	EventID       string
	OccurredAt    time.Time
	CorrelationID string
	CausationID   string
	TenantID      string
	StationID     string
}

type aggregated interface {
	AggregateKey() string
}

// BuildEnvelope wraps event with metadata. Station and occurrence time are
// read from the event's StationID and OccurredAt fields when meta omits them.
func BuildEnvelope(event any, meta Meta) (Envelope, error) {
	if event == nil {
		return Envelope{}, errors.New("eventing: nil event")
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return Envelope{}, err
	}

	env := Envelope{
		EventID:       meta.EventID,
		EventType:     eventbus.EventType(event),
		OccurredAt:    meta.OccurredAt,
		CorrelationID: meta.CorrelationID,
		CausationID:   meta.CausationID,
		TenantID:      meta.TenantID,
		StationID:     meta.StationID,
		SchemaVersion: CurrentSchemaVersion,
		Payload:       payload,
	}
	if agg, ok := event.(aggregated); ok {
		env.AggregateKey = agg.AggregateKey()
	}
	fields := structOf(event)
	if env.StationID == "" {
		if f := field(fields, "StationID"); f.IsValid() && f.Kind() == reflect.String {
			env.StationID = f.String()
		}
	}
	if env.OccurredAt.IsZero() {
		if f := field(fields, "OccurredAt"); f.IsValid() {
			env.OccurredAt, _ = f.Interface().(time.Time)
		}
	}
	if env.OccurredAt.IsZero() {
		env.OccurredAt = time.Now()
	}
	env.OccurredAt = env.OccurredAt.UTC()
	if env.EventID == "" {
		env.EventID = NewEventID()
	}
	if env.CorrelationID == "" {
		env.CorrelationID = env.EventID
	}
	return env, nil
}

func structOf(event any) reflect.Value {
	value := reflect.ValueOf(event)
	for value.Kind() == reflect.Ptr {
		if value.IsNil() {
			return reflect.Value{}
		}
		value = value.Elem()
	}
	if value.Kind() != reflect.Struct {
		return reflect.Value{}
	}
	return value
}

func field(value reflect.Value, name string) reflect.Value {
	if !value.IsValid() {
		return reflect.Value{}
	}
	return value.FieldByName(name)
}
