package middleware

import (
	"context"
	"net/http"

	"github.com/autounite/admin-console/internal/guard"
	"github.com/autounite/admin-console/internal/logging"
	"github.com/autounite/admin-console/internal/session"
)

type profileKey struct{}

// Scope is the per-request session view the auth middleware works on.
type Scope interface {
	Guard() *guard.Guard
	Policy() *guard.Policy
}

// ScopeFunc returns the Scope of a request.
type ScopeFunc func(r *http.Request) Scope

// AuthMiddleware runs the route guard before protected handlers.
type AuthMiddleware struct {
	scope     ScopeFunc
	logger    *logging.Logger
	skipPaths map[string]bool
}

// NewAuthMiddleware creates a new authentication middleware.
func NewAuthMiddleware(scope ScopeFunc, logger *logging.Logger, skipPaths []string) *AuthMiddleware {
	skip := make(map[string]bool)
	for _, path := range skipPaths {
		skip[path] = true
	}

	return &AuthMiddleware{
		scope:     scope,
		logger:    logger,
		skipPaths: skip,
	}
}

// Handler returns the middleware handler. A guard decision to navigate away
// becomes a 303 to the policy's target; otherwise the confirmed profile is
// attached to the request context.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skipPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		sc := m.scope(r)
		d := sc.Guard().Check(r.Context(), r.URL.Path)
		if target, ok := sc.Policy().Navigate(d); ok {
			m.logger.WithContext(r.Context()).WithFields(map[string]interface{}{
				"path":   r.URL.Path,
				"state":  d.State.String(),
				"target": target,
			}).Debug("guard redirect")
			http.Redirect(w, r, target, http.StatusSeeOther)
			return
		}

		ctx := r.Context()
		if d.State == guard.StateAuthenticated {
			ctx = WithProfile(ctx, d.Profile)
			noteUser(ctx, d.Profile.ID)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// WithProfile attaches the confirmed profile to ctx, along with the
// advisory user id and role used in logs.
func WithProfile(ctx context.Context, p session.Profile) context.Context {
	ctx = context.WithValue(ctx, profileKey{}, p)
	ctx = logging.WithUserID(ctx, p.ID)
	if p.Role != "" {
		ctx = context.WithValue(ctx, logging.RoleKey, string(p.Role))
	}
	return ctx
}

// GetProfile returns the profile confirmed by the guard, if any.
func GetProfile(ctx context.Context) (session.Profile, bool) {
	p, ok := ctx.Value(profileKey{}).(session.Profile)
	return p, ok
}

// GetUserID extracts user ID from context.
func GetUserID(ctx context.Context) string {
	return logging.GetUserID(ctx)
}

// GetUserRole extracts user role from context.
func GetUserRole(ctx context.Context) string {
	return logging.GetRole(ctx)
}
