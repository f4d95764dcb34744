package auth

import (
	"slices"
	"strings"
)

// Role is an employee's authority level within a tenant.
type Role string

const (
	RoleViewer    Role = "viewer"
	RoleAttendant Role = "attendant"
	RoleManager   Role = "manager"
	RoleOwner     Role = "owner"
	RoleAdmin     Role = "admin"
)

// roleOrder lists roles from least to most privileged.
var roleOrder = []Role{RoleViewer, RoleAttendant, RoleManager, RoleOwner, RoleAdmin}

// NormalizeRole validates a role string, ignoring case.
func NormalizeRole(value string) (Role, bool) {
	for _, role := range roleOrder {
		if strings.EqualFold(string(role), value) {
			return role, true
		}
	}
	return "", false
}

// RoleAtLeast reports whether role carries at least the authority of
// required. Unknown roles satisfy nothing.
func RoleAtLeast(role Role, required Role) bool {
	have := slices.Index(roleOrder, role)
	return have >= 0 && have >= slices.Index(roleOrder, required)
}
