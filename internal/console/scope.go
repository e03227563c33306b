package console

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/autounite/admin-console/internal/apiclient"
	"github.com/autounite/admin-console/internal/auth"
	"github.com/autounite/admin-console/internal/guard"
	"github.com/autounite/admin-console/internal/middleware"
	"github.com/autounite/admin-console/internal/session"
)

// SessionCookie carries the browser's console session id.
const SessionCookie = "console_session"

// expiredRoute is where a mid-session teardown lands.
const expiredRoute = guard.LoginRoute + "?expired=1"

// scope is everything one request needs to talk to the backend on behalf of
// one browser.
type scope struct {
	id     string
	store  *session.Store
	policy *guard.Policy
	api    *apiclient.Client
	auth   *auth.Service
	guard  *guard.Guard
}

func (sc *scope) Guard() *guard.Guard   { return sc.guard }
func (sc *scope) Policy() *guard.Policy { return sc.policy }

type scopeKey struct{}

func (s *Server) newScope(id string) *scope {
	store := session.New(session.WithPrefix(s.backend, "console:"+id+":"), s.log)
	policy := guard.NewPolicy(expiredRoute, s.log)
	api := s.api.Bind(store, policy)
	svc := auth.New(api)
	return &scope{
		id:     id,
		store:  store,
		policy: policy,
		api:    api,
		auth:   svc,
		guard:  guard.New(store, svc, guard.WithLogger(s.log), guard.WithRoutes(guard.LoginRoute, "/queries")),
	}
}

// scopeFor returns the request's scope, creating it (and a session cookie
// when the browser has none) on first use.
func (s *Server) scopeFor(w http.ResponseWriter, r *http.Request) (*scope, *http.Request) {
	if sc, ok := r.Context().Value(scopeKey{}).(*scope); ok {
		return sc, r
	}

	id := ""
	if c, err := r.Cookie(SessionCookie); err == nil {
		if parsed, err := uuid.Parse(c.Value); err == nil {
			id = parsed.String()
		}
	}
	if id == "" {
		id = uuid.NewString()
		s.setSessionCookie(w, id)
	}

	sc := s.newScope(id)
	return sc, r.WithContext(context.WithValue(r.Context(), scopeKey{}, sc))
}

// rotate moves the browser to a fresh session id, discarding whatever the
// old one held.
func (s *Server) rotate(w http.ResponseWriter, old *scope) *scope {
	if old != nil {
		old.store.Clear()
	}
	id := uuid.NewString()
	s.setSessionCookie(w, id)
	return s.newScope(id)
}

func (s *Server) setSessionCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   int(s.opts.SessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   s.opts.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

// withScope attaches the browser's scope to the request.
func (s *Server) withScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, r = s.scopeFor(w, r)
		next.ServeHTTP(w, r)
	})
}

// scopeOf hands the request's scope to the auth middleware.
func (s *Server) scopeOf(r *http.Request) middleware.Scope {
	return scopeFrom(r)
}

func scopeFrom(r *http.Request) *scope {
	sc, _ := r.Context().Value(scopeKey{}).(*scope)
	return sc
}
