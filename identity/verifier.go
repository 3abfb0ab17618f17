package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/appgeocercas/api/models"
)

// Claims represents the claims GoTrue puts in its access tokens
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Role  string `json:"role"`
}

// LocalVerifier verifies HS256 access tokens with the project JWT secret
// instead of calling the provider. Refresh, login and logout still go to the
// delegate since they need provider-side session state.
type LocalVerifier struct {
	Provider

	secret []byte
	issuer string
}

// NewLocalVerifier creates a verifier. An empty issuer disables the issuer check.
func NewLocalVerifier(delegate Provider, secret, issuer string) *LocalVerifier {
	return &LocalVerifier{
		Provider: delegate,
		secret:   []byte(secret),
		issuer:   issuer,
	}
}

// GetUser validates the token signature and standard claims locally
func (v *LocalVerifier) GetUser(_ context.Context, accessToken string) (*models.Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(accessToken, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenInvalidIssuer):
			return nil, fmt.Errorf("%w: %v", ErrInvalidIssuer, err)
		default:
			return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid sub: %v", ErrInvalidToken, err)
	}

	return &models.Identity{
		UserID:      userID,
		Email:       claims.Email,
		AccessToken: accessToken,
	}, nil
}
