package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/appgeocercas/api/models"
	"github.com/appgeocercas/api/repositories"
)

// MembershipRepository implements the repositories.MembershipRepository interface
type MembershipRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewMembershipRepository creates a new membership repository
func NewMembershipRepository(db *DB, logger *zap.Logger) repositories.MembershipRepository {
	return &MembershipRepository{
		db:     db,
		logger: logger,
	}
}

// ListActiveMemberships returns the user's non-revoked memberships, oldest first.
// Rows with a role outside the known set fail the whole lookup.
func (r *MembershipRepository) ListActiveMemberships(ctx context.Context, userID uuid.UUID) ([]*models.Membership, error) {
	query := `
		SELECT user_id, org_id, role, is_default, revoked_at, created_at
		FROM memberships
		WHERE user_id = $1 AND revoked_at IS NULL
		ORDER BY created_at ASC, org_id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		r.logger.Error("membership query failed",
			append(pqFields(err), zap.String("user_id", userID.String()))...)
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	var memberships []*models.Membership
	for rows.Next() {
		m := &models.Membership{}
		var role string
		var revokedAt sql.NullTime

		if err := rows.Scan(&m.UserID, &m.OrgID, &role, &m.IsDefault, &revokedAt, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}

		parsed, err := models.ParseRole(role)
		if err != nil {
			r.logger.Error("membership has unknown role",
				zap.String("user_id", userID.String()),
				zap.String("org_id", m.OrgID.String()),
				zap.String("role", role))
			return nil, fmt.Errorf("membership %s: %w", m.OrgID, err)
		}
		m.Role = parsed
		if revokedAt.Valid {
			m.RevokedAt = &revokedAt.Time
		}

		memberships = append(memberships, m)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("membership rows failed",
			append(pqFields(err), zap.String("user_id", userID.String()))...)
		return nil, fmt.Errorf("failed to iterate memberships: %w", err)
	}

	return memberships, nil
}
