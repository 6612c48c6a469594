package auth

import "strings"

// Role is the user's role
type Role string

const (
	// RoleUser is the default role (i.e. view)
	RoleUser Role = "user"
	// RoleEditor can create and edit content
	RoleEditor Role = "editor"
	// RoleAdmin can create, edit and delete content
	RoleAdmin Role = "admin"
)

// IsValid checks if the role is one of the predefined valid roles
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleEditor, RoleAdmin:
		return true
	default:
		return false
	}
}

func (r Role) String() string {
	return string(r)
}

// GetAllRoles returns all predefined roles
func GetAllRoles() []Role {
	return []Role{
		RoleUser,
		RoleEditor,
		RoleAdmin,
	}
}

// ParseRole safely parses a string into a Role
func ParseRole(s string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(s)))
	if !role.IsValid() {
		return "", ErrInvalidRole
	}
	return role, nil
}

// RoleSet is the allow-list of a protected operation
type RoleSet map[Role]struct{}

// Allow builds a RoleSet
func Allow(roles ...Role) RoleSet {
	set := make(RoleSet, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return set
}

// Contains reports whether role is allowed
func (s RoleSet) Contains(role Role) bool {
	_, ok := s[role]
	return ok
}

// Roles returns the members of the set in hierarchy order
func (s RoleSet) Roles() []Role {
	out := make([]Role, 0, len(s))
	for _, r := range GetAllRoles() {
		if s.Contains(r) {
			out = append(out, r)
		}
	}
	return out
}

// Allow-lists for the operations exposed by the blog admin.
var (
	ViewDashboard = Allow(RoleUser, RoleEditor, RoleAdmin)
	CreateContent = Allow(RoleAdmin, RoleEditor)
	EditContent   = Allow(RoleAdmin, RoleEditor)
	DeleteContent = Allow(RoleAdmin)
)
