package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

var (
	ErrUnauthorized = errors.New("auth: unauthorized")
	ErrForbidden    = errors.New("auth: forbidden")
	ErrInvalidToken = errors.New("auth: invalid token")
	ErrNotFound     = errors.New("auth: resource not found")

	// ErrTenantMismatch indicates the station belongs to another tenant.
	ErrTenantMismatch = fmt.Errorf("%w: tenant mismatch", ErrForbidden)
	// ErrStationNotAssigned indicates the caller is not rostered on the station.
	ErrStationNotAssigned = fmt.Errorf("%w: station not assigned", ErrForbidden)
)

// Identity is the authenticated caller. An empty Stations list means the
// caller is not restricted to particular forecourts.
type Identity struct {
	TenantID string
	Role     Role
	Subject  string
	Stations []string
}

type identityKey struct{}

// WithIdentity stores the caller's tenant, role and subject in context.
func WithIdentity(ctx context.Context, tenantID string, role Role, subject string) context.Context {
	current, _ := IdentityFromContext(ctx)
	current.TenantID = tenantID
	current.Role = role
	current.Subject = subject
	return context.WithValue(ctx, identityKey{}, current)
}

func withIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// WithStations restricts the identity in ctx to the given stations.
func WithStations(ctx context.Context, stations ...string) context.Context {
	current, _ := IdentityFromContext(ctx)
	current.Stations = slices.Clone(stations)
	return context.WithValue(ctx, identityKey{}, current)
}

// IdentityFromContext returns the caller identity, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	identity, ok := ctx.Value(identityKey{}).(Identity)
	return identity, ok
}

func TenantIDFromContext(ctx context.Context) string {
	identity, _ := IdentityFromContext(ctx)
	return identity.TenantID
}

func RoleFromContext(ctx context.Context) Role {
	identity, _ := IdentityFromContext(ctx)
	return identity.Role
}

func SubjectFromContext(ctx context.Context) string {
	identity, _ := IdentityFromContext(ctx)
	return identity.Subject
}

// StationAllowed reports whether the caller may act on stationID. Owners and
// admins see every station of their tenant.
func StationAllowed(ctx context.Context, stationID string) bool {
	identity, ok := IdentityFromContext(ctx)
	if !ok || len(identity.Stations) == 0 || RoleAtLeast(identity.Role, RoleOwner) {
		return true
	}
	return slices.Contains(identity.Stations, stationID)
}
