package auth

import (
	"net/http"
	"net/url"
	"strings"
)

const (
	// AccessCookieName carries the short-lived access credential
	AccessCookieName = "tg_at"
	// RefreshCookieName carries the long-lived refresh credential
	RefreshCookieName = "tg_rt"
)

// Credentials are the raw session credentials presented by a request.
// Empty strings mean absent.
type Credentials struct {
	AccessToken  string
	RefreshToken string

	// FromHeader is set when AccessToken came from the Authorization header
	FromHeader bool
}

// HasAny reports whether at least one credential was presented
func (c Credentials) HasAny() bool {
	return c.AccessToken != "" || c.RefreshToken != ""
}

// ParseCookieHeader parses a raw Cookie header leniently. Pairs without "="
// and empty names are skipped, values are URL-decoded with the raw value
// kept when decoding fails, and the first occurrence of a name wins.
func ParseCookieHeader(raw string) map[string]string {
	cookies := make(map[string]string)
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		name, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, seen := cookies[name]; seen {
			continue
		}

		value = strings.Trim(strings.TrimSpace(value), `"`)
		if decoded, err := url.PathUnescape(value); err == nil {
			value = decoded
		}
		cookies[name] = value
	}
	return cookies
}

// ExtractCredentials reads the session credentials from a request. A Bearer
// Authorization header takes precedence over the access cookie.
func ExtractCredentials(r *http.Request) Credentials {
	var cookies map[string]string
	if header := strings.Join(r.Header.Values("Cookie"), "; "); header != "" {
		cookies = ParseCookieHeader(header)
	}

	creds := Credentials{
		AccessToken:  cookies[AccessCookieName],
		RefreshToken: cookies[RefreshCookieName],
	}

	if token := extractBearerToken(r); token != "" {
		creds.AccessToken = token
		creds.FromHeader = true
	}

	return creds
}

// extractBearerToken extracts the token from an "Authorization: Bearer <token>" header
func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
