package tenant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/appgeocercas/api/models"
	"github.com/appgeocercas/api/repositories/rpc"
	"github.com/appgeocercas/api/services"
	"github.com/appgeocercas/api/utils"
)

// contextRow is the only accepted row shape for session-context RPCs
type contextRow struct {
	OrgID string `validate:"required,uuid"`
	Role  string `validate:"required,role"`
}

// RPCResolver resolves the tenant through the bootstrap_session_context RPC
type RPCResolver struct {
	caller rpc.Caller
	logger *zap.Logger
}

// NewRPCResolver creates a new RPCResolver instance
func NewRPCResolver(caller rpc.Caller, logger *zap.Logger) *RPCResolver {
	return &RPCResolver{
		caller: caller,
		logger: logger,
	}
}

// Resolve calls the RPC as the user. An empty result means no organization;
// more than one row is a malformed response.
func (r *RPCResolver) Resolve(ctx context.Context, id *models.Identity) (*models.ResolvedContext, error) {
	raw, err := r.caller.Call(ctx, rpc.FnBootstrapSessionContext, id.AccessToken, nil)
	if err != nil {
		return nil, services.WrapProviderCall("bootstrap_session_context failed", err)
	}

	rows, err := decodeContextRows(raw)
	if err != nil {
		r.logger.Error("bootstrap_session_context returned a malformed response",
			zap.String("user_id", id.UserID.String()),
			zap.Error(err))
		return nil, err
	}

	switch len(rows) {
	case 0:
		return nil, services.ErrNoOrganization
	case 1:
		return rows[0].resolved(id, models.SourceRPC), nil
	default:
		r.logger.Error("bootstrap_session_context returned more than one row",
			zap.String("user_id", id.UserID.String()),
			zap.Int("rows", len(rows)))
		return nil, services.WrapMalformed(fmt.Sprintf("expected at most one row, got %d", len(rows)), nil)
	}
}

// Bootstrapper runs the explicit ensure_current_org_for_user operation, which
// may create a default organization with the caller as owner.
type Bootstrapper struct {
	caller  rpc.Caller
	enabled bool
	logger  *zap.Logger
}

// NewBootstrapper creates a new Bootstrapper. When enabled is false every call
// returns ErrBootstrapDisabled.
func NewBootstrapper(caller rpc.Caller, enabled bool, logger *zap.Logger) *Bootstrapper {
	return &Bootstrapper{
		caller:  caller,
		enabled: enabled,
		logger:  logger,
	}
}

// Enabled reports whether bootstrap is allowed
func (b *Bootstrapper) Enabled() bool {
	return b.enabled && b.caller != nil
}

// EnsureOrganization returns the caller's current org, creating one if needed.
// Exactly one row is required.
func (b *Bootstrapper) EnsureOrganization(ctx context.Context, id *models.Identity) (*models.ResolvedContext, error) {
	if !b.Enabled() {
		return nil, services.ErrBootstrapDisabled
	}

	raw, err := b.caller.Call(ctx, rpc.FnEnsureCurrentOrg, id.AccessToken, nil)
	if err != nil {
		return nil, services.WrapProviderCall("ensure_current_org_for_user failed", err)
	}

	rows, err := decodeContextRows(raw)
	if err != nil {
		b.logger.Error("ensure_current_org_for_user returned a malformed response",
			zap.String("user_id", id.UserID.String()),
			zap.Error(err))
		return nil, err
	}
	if len(rows) != 1 {
		return nil, services.WrapMalformed(fmt.Sprintf("expected exactly one row, got %d", len(rows)), nil)
	}

	rc := rows[0].resolved(id, models.SourceBootstrap)
	b.logger.Info("organization ensured",
		zap.String("user_id", id.UserID.String()),
		zap.String("org_id", rc.OrgID.String()),
		zap.String("role", rc.Role.String()))

	return rc, nil
}

// decodeContextRows parses raw as a JSON array of {"org_id","role"} objects.
// Anything else, including extra or differently cased keys, is malformed.
func decodeContextRows(raw json.RawMessage) ([]contextRow, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, services.WrapMalformed("expected a JSON array", nil)
	}

	var elems []map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &elems); err != nil {
		return nil, services.WrapMalformed("invalid row array", err)
	}

	rows := make([]contextRow, 0, len(elems))
	for i, elem := range elems {
		row, err := decodeContextRow(elem)
		if err != nil {
			return nil, services.WrapMalformed(fmt.Sprintf("row %d", i), err)
		}
		rows = append(rows, row)
	}

	return rows, nil
}

func decodeContextRow(elem map[string]json.RawMessage) (contextRow, error) {
	var row contextRow
	if len(elem) != 2 {
		return row, fmt.Errorf("expected exactly org_id and role, got %d fields", len(elem))
	}

	orgID, ok := elem["org_id"]
	if !ok {
		return row, fmt.Errorf("missing org_id")
	}
	role, ok := elem["role"]
	if !ok {
		return row, fmt.Errorf("missing role")
	}

	if err := json.Unmarshal(orgID, &row.OrgID); err != nil {
		return row, fmt.Errorf("org_id: %w", err)
	}
	if err := json.Unmarshal(role, &row.Role); err != nil {
		return row, fmt.Errorf("role: %w", err)
	}

	if err := utils.ValidateStruct(&row); err != nil {
		return row, err
	}

	return row, nil
}

func (r contextRow) resolved(id *models.Identity, source models.ContextSource) *models.ResolvedContext {
	return &models.ResolvedContext{
		User:   *id,
		OrgID:  uuid.MustParse(r.OrgID),
		Role:   models.Role(r.Role),
		Source: source,
	}
}
