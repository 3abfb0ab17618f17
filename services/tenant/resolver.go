package tenant

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/appgeocercas/api/models"
	"github.com/appgeocercas/api/repositories"
	"github.com/appgeocercas/api/services"
)

// Resolver maps a validated identity to the organization and role that apply
// to the current request. Implementations never read client-supplied org ids.
type Resolver interface {
	Resolve(ctx context.Context, id *models.Identity) (*models.ResolvedContext, error)
}

// MembershipResolver resolves the tenant from the memberships table
type MembershipResolver struct {
	repo   repositories.MembershipRepository
	logger *zap.Logger
}

// NewMembershipResolver creates a new MembershipResolver instance
func NewMembershipResolver(repo repositories.MembershipRepository, logger *zap.Logger) *MembershipResolver {
	return &MembershipResolver{
		repo:   repo,
		logger: logger,
	}
}

// Resolve picks the default active membership, falling back to the earliest
// created one. A user with no active membership gets ErrNoOrganization.
func (r *MembershipResolver) Resolve(ctx context.Context, id *models.Identity) (*models.ResolvedContext, error) {
	memberships, err := r.Memberships(ctx, id)
	if err != nil {
		return nil, err
	}

	selected, defaults := SelectMembership(memberships)
	if selected == nil {
		return nil, services.ErrNoOrganization
	}
	if defaults > 1 {
		r.logger.Warn("user has more than one default membership",
			zap.String("user_id", id.UserID.String()),
			zap.Int("defaults", defaults),
			zap.String("selected_org_id", selected.OrgID.String()))
	}

	return &models.ResolvedContext{
		User:   *id,
		OrgID:  selected.OrgID,
		Role:   selected.Role,
		Source: models.SourceMemberships,
	}, nil
}

// Memberships returns the caller's active memberships, oldest first
func (r *MembershipResolver) Memberships(ctx context.Context, id *models.Identity) ([]*models.Membership, error) {
	memberships, err := r.repo.ListActiveMemberships(ctx, id.UserID)
	if err != nil {
		return nil, services.WrapMembershipLookup("failed to list memberships", err)
	}

	active := make([]*models.Membership, 0, len(memberships))
	for _, m := range memberships {
		if m != nil && m.IsActive() {
			active = append(active, m)
		}
	}
	sortByCreated(active)

	return active, nil
}

// SelectMembership applies the selection order: earliest default membership,
// then earliest membership overall. It also reports how many defaults were seen.
func SelectMembership(memberships []*models.Membership) (*models.Membership, int) {
	var first, firstDefault *models.Membership
	defaults := 0

	for _, m := range memberships {
		if m == nil || !m.IsActive() {
			continue
		}
		if first == nil || createdBefore(m, first) {
			first = m
		}
		if m.IsDefault {
			defaults++
			if firstDefault == nil || createdBefore(m, firstDefault) {
				firstDefault = m
			}
		}
	}

	if firstDefault != nil {
		return firstDefault, defaults
	}
	return first, defaults
}

func createdBefore(a, b *models.Membership) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.OrgID.String() < b.OrgID.String()
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

func sortByCreated(memberships []*models.Membership) {
	sort.SliceStable(memberships, func(i, j int) bool {
		return createdBefore(memberships[i], memberships[j])
	})
}
