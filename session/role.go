package session

import (
	"errors"
	"fmt"
)

// Role is the closed set of account roles carried in a session token.
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// ErrInvalidRole is returned when a token carries a missing or unknown role.
var ErrInvalidRole = errors.New("invalid role")

// ParseRole maps a claim value onto the closed role set.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleUser, RoleAdmin, RoleSuperAdmin:
		return r, nil
	case "":
		return "", fmt.Errorf("%w: missing", ErrInvalidRole)
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
}

// Elevated reports whether the role may use the admin pages.
func (r Role) Elevated() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

func (r Role) String() string { return string(r) }
