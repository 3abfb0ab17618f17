package models

import (
	"time"

	"github.com/google/uuid"
)

// DefaultAccessTTL is assumed when the identity provider omits expires_in
const DefaultAccessTTL = time.Hour

// TokenPair is a freshly issued access/refresh credential pair
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// AccessTTL returns the lifetime of the access credential
func (p *TokenPair) AccessTTL() time.Duration {
	if p.ExpiresIn <= 0 {
		return DefaultAccessTTL
	}
	return time.Duration(p.ExpiresIn) * time.Second
}

// ContextSource records which resolution path produced a ResolvedContext
type ContextSource string

const (
	SourceMemberships ContextSource = "memberships"
	SourceRPC         ContextSource = "rpc"
	SourceBootstrap   ContextSource = "bootstrap"
)

// ResolvedContext is the tenant and role that apply to the current request.
// It is computed fresh for every request and never cached or persisted.
type ResolvedContext struct {
	User   Identity      `json:"user"`
	OrgID  uuid.UUID     `json:"org_id"`
	Role   Role          `json:"role"`
	Source ContextSource `json:"source"`
}

// CanWrite returns true if the resolved role may perform write operations
func (c *ResolvedContext) CanWrite() bool {
	return c.Role.CanWrite()
}
