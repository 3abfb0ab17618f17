package repositories

import (
	"context"

	"github.com/google/uuid"

	"github.com/appgeocercas/api/models"
)

// Repositories groups every repository the service uses
type Repositories struct {
	Memberships MembershipRepository
	AuditLogs   AuditRepository
}

// MembershipRepository reads organization memberships. It never writes.
type MembershipRepository interface {
	// ListActiveMemberships returns the user's non-revoked memberships
	// ordered by created_at ascending
	ListActiveMemberships(ctx context.Context, userID uuid.UUID) ([]*models.Membership, error)
}

// AuditRepository handles audit log data operations
type AuditRepository interface {
	// Insert inserts a new audit log entry
	Insert(ctx context.Context, log *models.AuditLog) error

	// GetByUserID retrieves audit logs for a user with pagination, newest first
	GetByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.AuditLog, error)
}
