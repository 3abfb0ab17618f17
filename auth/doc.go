// Package auth provides session authentication for the App Geocercas API.
//
// This package implements:
//   - Credential extraction from the tg_at/tg_rt cookies and the Bearer header
//   - Session validation with at most one refresh per request
//   - Session cookie issuing and clearing
//   - Login, refresh and logout endpoints
//
// Every protected request goes through ContextResolver, which validates the
// session and then resolves the caller's organization and role.
package auth
