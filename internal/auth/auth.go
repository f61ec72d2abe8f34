// Package auth implements the token lookup and role check the transport
// layer performs before reaching the engine (§1 lists these as external
// collaborators to the core, but a complete server still needs them).
//
// Grounded on original_source/auth.py's get_current_user/require_auth/
// require_admin: "Authorization: TOKEN <api_key>" header parsing, a
// user lookup by api_key, and a role comparison for admin endpoints.
package auth

import (
	"context"
	"net/http"
	"strings"

	"tochka-exchange/internal/apperr"
	"tochka-exchange/internal/models"
	"tochka-exchange/internal/storage"
)

// Authenticator resolves the caller identity from the Authorization
// header.
type Authenticator struct {
	db *storage.Adapter
}

// New builds an Authenticator over the storage adapter.
func New(db *storage.Adapter) *Authenticator {
	return &Authenticator{db: db}
}

// Authenticate parses "Authorization: TOKEN <api_key>" and resolves the
// user. Any other header format, or an unknown api_key, is
// Unauthenticated (§6.1, §7).
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) (*models.User, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, apperr.Unauthenticated("missing Authorization header")
	}
	tokenType, apiKey, ok := strings.Cut(header, " ")
	if !ok || tokenType != "TOKEN" || apiKey == "" {
		return nil, apperr.Unauthenticated("malformed Authorization header")
	}
	user, err := a.db.LookupUserByAPIKey(ctx, apiKey)
	if err != nil {
		return nil, apperr.Unauthenticated("unknown api key")
	}
	return user, nil
}

// RequireAdmin wraps Authenticate with a role check (§6.1 admin
// endpoints).
func (a *Authenticator) RequireAdmin(ctx context.Context, r *http.Request) (*models.User, error) {
	user, err := a.Authenticate(ctx, r)
	if err != nil {
		return nil, err
	}
	if user.Role != models.RoleAdmin {
		return nil, apperr.Forbidden("administrator role required")
	}
	return user, nil
}
