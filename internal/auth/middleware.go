package auth

import (
	"fmt"
	"net/http"
	"strings"

	"fuelstation-cloud/internal/apperror"
)

var (
	errMissingBearer = apperror.New(apperror.KindUnauthorized, "Unauthorized", "auth: bearer token required")
	errRejectedToken = apperror.New(apperror.KindUnauthorized, "Unauthorized", "auth: token rejected")
	errRoleTooLow    = apperror.New(apperror.KindForbidden, "Forbidden", "auth: role not permitted")
)

// Middleware authenticates bearer tokens and gates routes by role.
type Middleware struct {
	secret []byte
	policy Policy
}

// NewMiddleware constructs an auth middleware.
func NewMiddleware(secret []byte, policy Policy) *Middleware {
	return &Middleware{secret: secret, policy: policy}
}

// Wrap authenticates requests whose route requires a role and stores the
// caller identity, including any station roster, on the request context.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		required, gated := m.policy.Requirement(r)
		if !gated {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			apperror.Write(w, errMissingBearer)
			return
		}
		claims, err := ParseJWT(token, m.secret)
		if err != nil {
			apperror.Write(w, errRejectedToken)
			return
		}
		id := claims.Identity()
		if !RoleAtLeast(id.Role, required) {
			apperror.Write(w, fmt.Errorf("%w: %s requires %s", errRoleTooLow, r.URL.Path, required))
			return
		}
		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), id)))
	})
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != "" && !strings.ContainsAny(token, " \t")
}

// RequireRole checks the caller's role from context for handler-level rules
// that depend on the resource being acted on.
func RequireRole(r *http.Request, required Role) bool {
	if r == nil {
		return false
	}
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		// unauthenticated deployments (no JWT secret) are not gated
		return true
	}
	return RoleAtLeast(id.Role, required)
}
