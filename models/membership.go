package models

import (
	"time"

	"github.com/google/uuid"
)

// Membership associates a user with an organization and a role
type Membership struct {
	UserID    uuid.UUID  `json:"user_id" db:"user_id"`
	OrgID     uuid.UUID  `json:"org_id" db:"org_id"`
	Role      Role       `json:"role" db:"role"`
	IsDefault bool       `json:"is_default" db:"is_default"`
	RevokedAt *time.Time `json:"revoked_at,omitempty" db:"revoked_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the Membership model
func (Membership) TableName() string {
	return "memberships"
}

// IsActive returns true if the membership has not been revoked
func (m *Membership) IsActive() bool {
	return m.RevokedAt == nil
}
