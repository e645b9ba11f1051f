package models

import "fmt"

// Role is the closed set of account roles carried in token claims.
// Switches over Role list every value so a new role fails review at each
// authorization site instead of silently falling through.
type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// ParseRole converts a stored or claimed role string into a Role
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleUser, RoleModerator, RoleAdmin:
		return Role(s), nil
	default:
		return "", fmt.Errorf("%w: unknown role %q", ErrBadRequest, s)
	}
}

// CanUnblock reports whether the role may lift lockouts
func (r Role) CanUnblock() bool {
	switch r {
	case RoleAdmin, RoleModerator:
		return true
	case RoleUser:
		return false
	default:
		return false
	}
}
