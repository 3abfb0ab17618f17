package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/appgeocercas/api/identity"
	"github.com/appgeocercas/api/models"
	"github.com/appgeocercas/api/services"
	"github.com/appgeocercas/api/services/audit"
)

// MockProvider is a mock implementation of identity.Provider
type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) GetUser(ctx context.Context, accessToken string) (*models.Identity, error) {
	args := m.Called(ctx, accessToken)
	if id := args.Get(0); id != nil {
		return id.(*models.Identity), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockProvider) RefreshToken(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	args := m.Called(ctx, refreshToken)
	if pair := args.Get(0); pair != nil {
		return pair.(*models.TokenPair), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockProvider) SignInWithPassword(ctx context.Context, email, password string) (*models.TokenPair, *models.Identity, error) {
	args := m.Called(ctx, email, password)
	var pair *models.TokenPair
	var id *models.Identity
	if p := args.Get(0); p != nil {
		pair = p.(*models.TokenPair)
	}
	if i := args.Get(1); i != nil {
		id = i.(*models.Identity)
	}
	return pair, id, args.Error(2)
}

func (m *MockProvider) SignOut(ctx context.Context, accessToken string) error {
	args := m.Called(ctx, accessToken)
	return args.Error(0)
}

// recordingAudit counts audit calls
type recordingAudit struct {
	audit.Discard
	refreshes int
}

func (a *recordingAudit) LogRefresh(*models.Identity, audit.RequestMeta) error {
	a.refreshes++
	return nil
}

var userA = &models.Identity{UserID: uuid.MustParse("11111111-1111-4111-8111-111111111111"), Email: "a@example.com"}
var userB = &models.Identity{UserID: uuid.MustParse("22222222-2222-4222-8222-222222222222"), Email: "b@example.com"}

func newTestValidator(p identity.Provider) *Validator {
	return NewValidator(p, NewCookieWriter(false, 0), nil, nil, zap.NewNop())
}

func copyIdentity(id *models.Identity) *models.Identity {
	c := *id
	return &c
}

func setCookies(rec *httptest.ResponseRecorder) map[string]*http.Cookie {
	out := make(map[string]*http.Cookie)
	for _, c := range rec.Result().Cookies() {
		out[c.Name] = c
	}
	return out
}

func TestValidator_NoCredentials(t *testing.T) {
	p := new(MockProvider)
	v := newTestValidator(p)

	r := httptest.NewRequest(http.MethodGet, "/api/v1/session", nil)
	rec := httptest.NewRecorder()

	id, err := v.Validate(rec, r, ExtractCredentials(r))
	assert.Nil(t, id)
	assert.True(t, services.IsUnauthenticatedError(err))
	assert.Empty(t, rec.Result().Cookies())
	p.AssertNotCalled(t, "GetUser", mock.Anything, mock.Anything)
}

func TestValidator_ValidAccessCookie(t *testing.T) {
	p := new(MockProvider)
	p.On("GetUser", mock.Anything, "at-1").Return(copyIdentity(userA), nil).Once()
	v := newTestValidator(p)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Cookie", "tg_at=at-1; tg_rt=rt-1")
	rec := httptest.NewRecorder()

	id, err := v.Validate(rec, r, ExtractCredentials(r))
	require.NoError(t, err)
	assert.Equal(t, userA.UserID, id.UserID)
	assert.Equal(t, "at-1", id.AccessToken)
	assert.Empty(t, rec.Result().Cookies())
	p.AssertNotCalled(t, "RefreshToken", mock.Anything, mock.Anything)
}

func TestValidator_HeaderTakesPrecedence(t *testing.T) {
	p := new(MockProvider)
	p.On("GetUser", mock.Anything, "header-token").Return(copyIdentity(userB), nil).Once()
	v := newTestValidator(p)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Cookie", "tg_at=cookie-token")
	r.Header.Set("Authorization", "Bearer header-token")

	id, err := v.Validate(httptest.NewRecorder(), r, ExtractCredentials(r))
	require.NoError(t, err)
	assert.Equal(t, userB.UserID, id.UserID)
	p.AssertNotCalled(t, "GetUser", mock.Anything, "cookie-token")
}

func TestValidator_HeaderFailureDoesNotRefresh(t *testing.T) {
	p := new(MockProvider)
	p.On("GetUser", mock.Anything, "bad-header").Return(nil, identity.ErrInvalidToken).Once()
	v := newTestValidator(p)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer bad-header")
	r.Header.Set("Cookie", "tg_rt=rt-1")
	rec := httptest.NewRecorder()

	_, err := v.Validate(rec, r, ExtractCredentials(r))
	assert.True(t, services.IsUnauthenticatedError(err))
	assert.Empty(t, rec.Result().Cookies())
	p.AssertNotCalled(t, "RefreshToken", mock.Anything, mock.Anything)
}

func TestValidator_RefreshSucceeds(t *testing.T) {
	p := new(MockProvider)
	p.On("GetUser", mock.Anything, "expired").Return(nil, identity.ErrTokenExpired).Once()
	p.On("RefreshToken", mock.Anything, "rt-1").
		Return(&models.TokenPair{AccessToken: "at-2", RefreshToken: "rt-2", ExpiresIn: 1800}, nil).Once()
	p.On("GetUser", mock.Anything, "at-2").Return(copyIdentity(userA), nil).Once()

	auditLog := &recordingAudit{}
	v := NewValidator(p, NewCookieWriter(false, 0), auditLog, nil, zap.NewNop())

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Cookie", "tg_at=expired; tg_rt=rt-1")
	rec := httptest.NewRecorder()

	id, err := v.Validate(rec, r, ExtractCredentials(r))
	require.NoError(t, err)
	assert.Equal(t, userA.UserID, id.UserID)
	assert.Equal(t, "at-2", id.AccessToken)
	assert.Equal(t, 1, auditLog.refreshes)

	cookies := setCookies(rec)
	require.Contains(t, cookies, AccessCookieName)
	require.Contains(t, cookies, RefreshCookieName)
	assert.Equal(t, "at-2", cookies[AccessCookieName].Value)
	assert.Equal(t, 1800, cookies[AccessCookieName].MaxAge)
	assert.Equal(t, "rt-2", cookies[RefreshCookieName].Value)
	assert.Equal(t, 30*24*3600, cookies[RefreshCookieName].MaxAge)
	p.AssertExpectations(t)
}

func TestValidator_RefreshWithoutAccessCookie(t *testing.T) {
	p := new(MockProvider)
	p.On("RefreshToken", mock.Anything, "rt-1").
		Return(&models.TokenPair{AccessToken: "at-2", RefreshToken: "rt-2"}, nil).Once()
	p.On("GetUser", mock.Anything, "at-2").Return(copyIdentity(userA), nil).Once()
	v := newTestValidator(p)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Cookie", "tg_rt=rt-1")
	rec := httptest.NewRecorder()

	_, err := v.Validate(rec, r, ExtractCredentials(r))
	require.NoError(t, err)
	assert.Equal(t, 3600, setCookies(rec)[AccessCookieName].MaxAge)
	p.AssertExpectations(t)
}

func TestValidator_RefreshFailureClearsCookies(t *testing.T) {
	p := new(MockProvider)
	p.On("GetUser", mock.Anything, "expired").Return(nil, identity.ErrTokenExpired).Once()
	p.On("RefreshToken", mock.Anything, "rt-revoked").Return(nil, identity.ErrInvalidGrant).Once()
	v := newTestValidator(p)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Cookie", "tg_at=expired; tg_rt=rt-revoked")
	rec := httptest.NewRecorder()

	_, err := v.Validate(rec, r, ExtractCredentials(r))
	assert.True(t, services.IsUnauthenticatedError(err))
	assert.ErrorIs(t, err, identity.ErrInvalidGrant)

	cookies := setCookies(rec)
	require.Len(t, cookies, 2)
	for _, c := range cookies {
		assert.Empty(t, c.Value)
		assert.Less(t, c.MaxAge, 0)
	}
}

func TestValidator_RetryFailureClearsCookies(t *testing.T) {
	p := new(MockProvider)
	p.On("GetUser", mock.Anything, "expired").Return(nil, identity.ErrTokenExpired).Once()
	p.On("RefreshToken", mock.Anything, "rt-1").
		Return(&models.TokenPair{AccessToken: "at-2", RefreshToken: "rt-2"}, nil).Once()
	p.On("GetUser", mock.Anything, "at-2").Return(nil, identity.ErrProviderUnavailable).Once()
	v := newTestValidator(p)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Cookie", "tg_at=expired; tg_rt=rt-1")
	rec := httptest.NewRecorder()

	_, err := v.Validate(rec, r, ExtractCredentials(r))
	assert.True(t, services.IsUnauthenticatedError(err))

	setCookie := rec.Header().Values("Set-Cookie")
	require.Len(t, setCookie, 2)
	for _, h := range setCookie {
		assert.Contains(t, h, "Max-Age=0")
	}
	p.AssertExpectations(t)
}

func TestValidator_ProviderErrorsAreUnauthenticated(t *testing.T) {
	for _, providerErr := range []error{
		identity.ErrInvalidToken,
		identity.ErrTokenExpired,
		identity.ErrMalformedResponse,
		identity.ErrProviderUnavailable,
		context.DeadlineExceeded,
		errors.New("boom"),
	} {
		t.Run(providerErr.Error(), func(t *testing.T) {
			p := new(MockProvider)
			p.On("GetUser", mock.Anything, "at").Return(nil, providerErr).Once()
			v := newTestValidator(p)

			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.Header.Set("Cookie", "tg_at=at")

			_, err := v.Validate(httptest.NewRecorder(), r, ExtractCredentials(r))
			var domainErr *services.DomainError
			require.ErrorAs(t, err, &domainErr)
			assert.Equal(t, services.ErrorTypeUnauthenticated, domainErr.Type)
			assert.Equal(t, http.StatusUnauthorized, domainErr.HTTPStatus())
		})
	}
}

func TestValidator_SingleRefreshPerRequest(t *testing.T) {
	p := new(MockProvider)
	p.On("GetUser", mock.Anything, "expired").Return(nil, identity.ErrTokenExpired).Twice()
	p.On("RefreshToken", mock.Anything, "rt-1").
		Return(&models.TokenPair{AccessToken: "at-2", RefreshToken: "rt-2"}, nil).Once()
	p.On("GetUser", mock.Anything, "at-2").Return(copyIdentity(userA), nil).Once()
	v := newTestValidator(p)

	var first, second *models.Identity
	handler := RequestScope(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var err error
		first, err = v.Validate(w, r, ExtractCredentials(r))
		require.NoError(t, err)
		second, err = v.Validate(w, r, ExtractCredentials(r))
		require.NoError(t, err)
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Cookie", "tg_at=expired; tg_rt=rt-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)

	assert.Equal(t, first.UserID, second.UserID)
	p.AssertNumberOfCalls(t, "RefreshToken", 1)
	assert.Len(t, rec.Header().Values("Set-Cookie"), 2)
}

func TestValidator_SingleRefreshFailurePerRequest(t *testing.T) {
	p := new(MockProvider)
	p.On("GetUser", mock.Anything, "expired").Return(nil, identity.ErrTokenExpired)
	p.On("RefreshToken", mock.Anything, "rt-1").Return(nil, identity.ErrInvalidGrant).Once()
	v := newTestValidator(p)

	handler := RequestScope(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for i := 0; i < 3; i++ {
			_, err := v.Validate(w, r, ExtractCredentials(r))
			assert.True(t, services.IsUnauthenticatedError(err))
		}
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Cookie", "tg_at=expired; tg_rt=rt-1")
	handler.ServeHTTP(httptest.NewRecorder(), r)

	p.AssertNumberOfCalls(t, "RefreshToken", 1)
}
