package auth

import (
	"net/http"
	"strings"
)

// routeRule grants access to requests whose path matches. A rule with an
// empty suffix matches the exact path, or every path under it when prefix
// ends with a slash.
type routeRule struct {
	path   string
	suffix string
	role   Role
}

func (rule routeRule) matches(path string) bool {
	if rule.suffix != "" {
		return strings.HasPrefix(path, rule.path) && strings.HasSuffix(path, rule.suffix)
	}
	if strings.HasSuffix(rule.path, "/") {
		return strings.HasPrefix(path, rule.path) || path == strings.TrimSuffix(rule.path, "/")
	}
	return path == rule.path
}

// Write routes are listed explicitly. Handover confirmation is further
// narrowed per chain step by the handler.
var defaultRules = []routeRule{
	{path: "/api/v1/readings", role: RoleAttendant},
	{path: "/api/v1/readings/", suffix: "/reverse", role: RoleManager},
	{path: "/api/v1/shifts/start", role: RoleAttendant},
	{path: "/api/v1/shifts/end", role: RoleAttendant},
	{path: "/api/v1/shifts/cancel", role: RoleManager},
	{path: "/api/v1/handovers/confirm", role: RoleAttendant},
	{path: "/api/v1/handovers/resolve", role: RoleManager},
	{path: "/api/v1/settlements/close", role: RoleManager},
	{path: "/api/v1/settlements/", suffix: "/export", role: RoleManager},
	{path: "/api/v1/audit-logs/", role: RoleManager},
}

// Policy maps requests to the minimum role they require.
type Policy struct {
	exempt   map[string]bool
	prefixes []string
	rules    []routeRule
}

// NewDefaultPolicy builds the route policy. Exempt paths and prefixes skip
// authentication entirely.
func NewDefaultPolicy(exemptPaths []string, exemptPrefixes []string) Policy {
	exempt := make(map[string]bool, len(exemptPaths))
	for _, path := range exemptPaths {
		exempt[path] = true
	}
	return Policy{exempt: exempt, prefixes: exemptPrefixes, rules: defaultRules}
}

// IsExempt returns true when a request should skip auth/RBAC.
func (p Policy) IsExempt(r *http.Request) bool {
	if r == nil || p.exempt[r.URL.Path] {
		return true
	}
	for _, prefix := range p.prefixes {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return true
		}
	}
	return false
}

// Requirement returns the role a request needs, and false when the request
// is not gated at all.
func (p Policy) Requirement(r *http.Request) (Role, bool) {
	if p.IsExempt(r) {
		return "", false
	}
	path := r.URL.Path
	for _, rule := range p.rules {
		if rule.matches(path) {
			return rule.role, true
		}
	}
	if !strings.HasPrefix(path, "/api/") {
		return "", false
	}
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return RoleViewer, true
	default:
		return RoleAdmin, true
	}
}
