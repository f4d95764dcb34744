package eventing

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"fuelstation-cloud/internal/eventbus"
)

var (
	ErrUnknownEventType  = errors.New("eventing: unknown event type")
	ErrUnsupportedSchema = errors.New("eventing: unsupported schema version")
)

// Registry maps wire names to Go types for decoding stored payloads.
type Registry struct {
	mu    sync.RWMutex
	types map[string]reflect.Type
}

// NewRegistry constructs a registry holding the given sample events.
func NewRegistry(samples ...any) *Registry {
	r := &Registry{types: make(map[string]reflect.Type)}
	for _, sample := range samples {
		r.Register(sample)
	}
	return r
}

// Register adds an event type by sample value or pointer.
func (r *Registry) Register(sample any) {
	if r == nil || sample == nil {
		return
	}
	t := reflect.TypeOf(sample)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	r.mu.Lock()
	r.types[eventbus.EventType(sample)] = t
	r.mu.Unlock()
}

// Types lists registered wire names in order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DecodePayload rebuilds the concrete event value stored in env.
func (r *Registry) DecodePayload(env Envelope) (any, error) {
	if r == nil {
		return nil, errors.New("eventing: nil registry")
	}
	if env.SchemaVersion > CurrentSchemaVersion {
		return nil, fmt.Errorf("%w: %s v%d", ErrUnsupportedSchema, env.EventType, env.SchemaVersion)
	}
	r.mu.RLock()
	t, ok := r.types[env.EventType]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, env.EventType)
	}
	target := reflect.New(t)
	if err := json.Unmarshal(env.Payload, target.Interface()); err != nil {
		return nil, err
	}
	return target.Elem().Interface(), nil
}
