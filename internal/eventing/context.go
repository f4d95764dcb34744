package eventing

import (
	"context"

	"fuelstation-cloud/internal/auth"
)

type envelopeKey struct{}

type overridesKey struct{}

// WithEnvelope marks ctx as handling env. Events published from a consumer
// inherit its correlation id and name it as their cause.
func WithEnvelope(ctx context.Context, env Envelope) context.Context {
	return context.WithValue(ctx, envelopeKey{}, env)
}

// EnvelopeFromContext returns the envelope being handled, if any.
func EnvelopeFromContext(ctx context.Context) (Envelope, bool) {
	env, ok := ctx.Value(envelopeKey{}).(Envelope)
	return env, ok
}

func overrides(ctx context.Context) Meta {
	meta, _ := ctx.Value(overridesKey{}).(Meta)
	return meta
}

// WithTenantID forces the tenant of events published with ctx.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	meta := overrides(ctx)
	meta.TenantID = tenantID
	return context.WithValue(ctx, overridesKey{}, meta)
}

// WithCorrelationID sets the correlation id of events published with ctx.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	meta := overrides(ctx)
	meta.CorrelationID = correlationID
	return context.WithValue(ctx, overridesKey{}, meta)
}

// WithEventID fixes the id of the next event published with ctx, making a
// retried publish idempotent.
func WithEventID(ctx context.Context, eventID string) context.Context {
	meta := overrides(ctx)
	meta.EventID = eventID
	return context.WithValue(ctx, overridesKey{}, meta)
}

// MetaFromContext builds envelope metadata. The tenant comes from an explicit
// override, then the handled envelope, then the caller identity, then
// defaultTenantID.
func MetaFromContext(ctx context.Context, defaultTenantID string) Meta {
	meta := overrides(ctx)
	if parent, ok := EnvelopeFromContext(ctx); ok {
		meta.CausationID = parent.EventID
		if meta.CorrelationID == "" {
			meta.CorrelationID = parent.CorrelationID
		}
		if meta.TenantID == "" {
			meta.TenantID = parent.TenantID
		}
	}
	if meta.TenantID == "" {
		meta.TenantID = auth.TenantIDFromContext(ctx)
	}
	if meta.TenantID == "" {
		meta.TenantID = defaultTenantID
	}
	return meta
}
