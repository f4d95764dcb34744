package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"fuelstation-cloud/internal/auth"
)

// Sink turns state transitions into audit entries. The resource type is
// the event type prefix ("handover.confirmed" -> "handover"); id and
// station come from the after (or before) snapshot.
type Sink struct {
	logger Logger
	now    func() time.Time
}

// NewSink constructs a sink writing through logger.
func NewSink(logger Logger) (*Sink, error) {
	if logger == nil {
		return nil, errors.New("audit sink: nil logger")
	}
	return &Sink{logger: logger, now: time.Now}, nil
}

type transition struct {
	Before any `json:"before,omitempty"`
	After  any `json:"after,omitempty"`
}

type resourceRef struct {
	ID        string `json:"id"`
	StationID string `json:"station_id"`
}

// Record writes one transition.
func (s *Sink) Record(ctx context.Context, eventType, actorID string, before, after any) error {
	if s == nil || s.logger == nil {
		return errors.New("audit sink: not configured")
	}
	if eventType == "" {
		return errors.New("audit sink: event type is required")
	}
	metadata, err := json.Marshal(transition{Before: before, After: after})
	if err != nil {
		return err
	}
	ref := refOf(after)
	if ref.ID == "" {
		ref = refOf(before)
	}
	resourceType := eventType
	if i := strings.IndexByte(eventType, '.'); i > 0 {
		resourceType = eventType[:i]
	}
	actor := actorID
	if actor == "" {
		actor = auth.SubjectFromContext(ctx)
	}
	return s.logger.Log(ctx, Entry{
		ID:            NewID(),
		TenantID:      auth.TenantIDFromContext(ctx),
		Actor:         actor,
		Role:          string(auth.RoleFromContext(ctx)),
		Action:        eventType,
		ResourceType:  resourceType,
		ResourceID:    ref.ID,
		StationID:     ref.StationID,
		Metadata:      metadata,
		PayloadDigest: DigestJSON(metadata),
		CreatedAt:     s.now().UTC(),
	})
}

func refOf(v any) resourceRef {
	var ref resourceRef
	if v == nil {
		return ref
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return ref
	}
	_ = json.Unmarshal(raw, &ref)
	return ref
}
