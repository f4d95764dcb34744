package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const clockSkew = 30 * time.Second

// Claims carries the tenant, role and station roster of a caller. The
// subject is the employee id recorded as actor on readings and handovers.
type Claims struct {
	TenantID string   `json:"tenant_id"`
	Role     string   `json:"role"`
	Stations []string `json:"stations,omitempty"`
	jwt.RegisteredClaims
}

// ParseJWT validates an HS256 token and returns its claims.
func ParseJWT(tokenString string, secret []byte) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrUnauthorized
	}
	if len(secret) == 0 {
		return nil, errors.New("auth: empty secret")
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(clockSkew),
	)
	claims := &Claims{}
	if _, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.TenantID == "" {
		return nil, fmt.Errorf("%w: missing tenant_id", ErrInvalidToken)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	if _, ok := NormalizeRole(claims.Role); !ok {
		return nil, fmt.Errorf("%w: invalid role %q", ErrInvalidToken, claims.Role)
	}
	return claims, nil
}

// IssueJWT signs a token for an employee. Used by operators to mint
// credentials for attendants and managers.
func IssueJWT(secret []byte, identity Identity, ttl time.Duration, now time.Time) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("auth: empty secret")
	}
	if identity.TenantID == "" || identity.Subject == "" {
		return "", errors.New("auth: tenant and subject are required")
	}
	role, ok := NormalizeRole(string(identity.Role))
	if !ok {
		return "", fmt.Errorf("auth: invalid role %q", identity.Role)
	}
	claims := Claims{
		TenantID: identity.TenantID,
		Role:     string(role),
		Stations: identity.Stations,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  identity.Subject,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// Identity converts validated claims into the caller identity.
func (c *Claims) Identity() Identity {
	role, _ := NormalizeRole(c.Role)
	return Identity{
		TenantID: c.TenantID,
		Role:     role,
		Subject:  c.Subject,
		Stations: c.Stations,
	}
}
