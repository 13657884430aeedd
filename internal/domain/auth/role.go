package auth

import "fmt"

// DeriveRole returns RoleAdmin when email is present and exactly equals adminEmail.
// Comparison is case-sensitive with no normalization. An absent email or an
// empty adminEmail always yields RoleUser.
func DeriveRole(email *string, adminEmail string) Role {
	if email == nil || adminEmail == "" {
		return RoleUser
	}
	if *email == adminEmail {
		return RoleAdmin
	}
	return RoleUser
}

// ParseRole converts a persisted or user-supplied string into a Role.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleUser, RoleAdmin:
		return r, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
}

// Rank orders roles for hierarchy checks; unknown roles rank below USER.
func (r Role) Rank() int {
	switch r {
	case RoleAdmin:
		return 2
	case RoleUser:
		return 1
	default:
		return 0
	}
}

// Satisfies reports whether r grants at least the privileges of required.
func (r Role) Satisfies(required Role) bool {
	return r.Rank() > 0 && r.Rank() >= required.Rank()
}
