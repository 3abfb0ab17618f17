package models

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Role represents the role of a user within an organization
type Role string

const (
	RoleOwner   Role = "owner"
	RoleAdmin   Role = "admin"
	RoleTracker Role = "tracker"
	RoleViewer  Role = "viewer"
)

// Roles lists every role the membership store may hand out
var Roles = []Role{RoleOwner, RoleAdmin, RoleTracker, RoleViewer}

// ParseRole converts a stored role string into a Role.
// Unknown values are rejected rather than mapped to a default.
func ParseRole(s string) (Role, error) {
	role := Role(strings.TrimSpace(s))
	if role.Valid() {
		return role, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Valid reports whether r belongs to the closed role set
func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// CanWrite returns true if the role may perform write operations
func (r Role) CanWrite() bool {
	return r == RoleOwner || r == RoleAdmin
}

func (r Role) String() string {
	return string(r)
}

// Identity is a user as vouched for by the identity provider.
// It is only ever built from a validated access credential.
type Identity struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`

	// AccessToken is the credential that produced this identity. Downstream
	// data-layer calls forward it so row-level security sees the same user.
	AccessToken string `json:"-"`
}
