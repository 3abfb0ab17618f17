// Package identity talks to the GoTrue-compatible identity provider that
// owns user accounts and session credentials.
package identity

import (
	"context"
	"errors"

	"github.com/appgeocercas/api/models"
)

var (
	// ErrInvalidToken is returned when the provider rejects an access credential
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired is returned when the access credential has expired
	ErrTokenExpired = errors.New("token expired")

	// ErrInvalidIssuer is returned when a locally verified token has the wrong issuer
	ErrInvalidIssuer = errors.New("invalid issuer")

	// ErrInvalidGrant is returned when a refresh credential or password is rejected
	ErrInvalidGrant = errors.New("invalid grant")

	// ErrMalformedResponse is returned when the provider answers 2xx with an unusable body
	ErrMalformedResponse = errors.New("malformed provider response")

	// ErrProviderUnavailable is returned on network failures, timeouts and 5xx answers
	ErrProviderUnavailable = errors.New("identity provider unavailable")

	// ErrNotConfigured is returned when no provider URL is set
	ErrNotConfigured = errors.New("identity provider not configured")
)

// Provider is the subset of the identity provider used by session handling.
type Provider interface {
	// GetUser resolves an access credential to the user it was issued for.
	GetUser(ctx context.Context, accessToken string) (*models.Identity, error)
	// RefreshToken exchanges a refresh credential for a new token pair.
	RefreshToken(ctx context.Context, refreshToken string) (*models.TokenPair, error)
	// SignInWithPassword runs the password grant.
	SignInWithPassword(ctx context.Context, email, password string) (*models.TokenPair, *models.Identity, error)
	// SignOut revokes the session behind the access credential.
	SignOut(ctx context.Context, accessToken string) error
}
