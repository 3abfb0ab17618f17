package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/appgeocercas/api/models"
)

// DefaultRefreshTTL is the fixed lifetime of the refresh cookie
const DefaultRefreshTTL = 30 * 24 * time.Hour

// CookieWriter builds the session cookies. It holds no per-request state.
type CookieWriter struct {
	forceSecure bool
	refreshTTL  time.Duration
}

// NewCookieWriter creates a cookie writer. A zero refreshTTL means 30 days.
func NewCookieWriter(forceSecure bool, refreshTTL time.Duration) *CookieWriter {
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTTL
	}
	return &CookieWriter{forceSecure: forceSecure, refreshTTL: refreshTTL}
}

// IsSecure reports whether cookies for r must carry the Secure attribute
func (cw *CookieWriter) IsSecure(r *http.Request) bool {
	if cw.forceSecure {
		return true
	}

	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		first, _, _ := strings.Cut(proto, ",")
		if strings.EqualFold(strings.TrimSpace(first), "https") {
			return true
		}
	}

	return r.TLS != nil
}

// SessionCookies returns the access and refresh cookies for a freshly issued pair
func (cw *CookieWriter) SessionCookies(r *http.Request, pair *models.TokenPair) []*http.Cookie {
	secure := cw.IsSecure(r)
	return []*http.Cookie{
		newSessionCookie(AccessCookieName, pair.AccessToken, int(pair.AccessTTL().Seconds()), secure),
		newSessionCookie(RefreshCookieName, pair.RefreshToken, int(cw.refreshTTL.Seconds()), secure),
	}
}

// ClearCookies returns expired versions of both session cookies. The output
// carries no Expires timestamp, so repeated calls are identical.
func (cw *CookieWriter) ClearCookies(r *http.Request) []*http.Cookie {
	secure := cw.IsSecure(r)
	return []*http.Cookie{
		newSessionCookie(AccessCookieName, "", -1, secure),
		newSessionCookie(RefreshCookieName, "", -1, secure),
	}
}

// WriteSession appends Set-Cookie headers for a freshly issued pair
func (cw *CookieWriter) WriteSession(w http.ResponseWriter, r *http.Request, pair *models.TokenPair) {
	for _, c := range cw.SessionCookies(r, pair) {
		http.SetCookie(w, c)
	}
}

// Clear appends Set-Cookie headers that delete both session cookies
func (cw *CookieWriter) Clear(w http.ResponseWriter, r *http.Request) {
	for _, c := range cw.ClearCookies(r) {
		http.SetCookie(w, c)
	}
}

// newSessionCookie builds a cookie. A negative maxAge is serialized as Max-Age=0.
func newSessionCookie(name, value string, maxAge int, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}
