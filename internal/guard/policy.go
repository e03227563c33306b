package guard

import (
	"context"
	"sync"

	"github.com/autounite/admin-console/internal/logging"
)

// Policy is the single place navigation is decided. It implements
// apiclient.UnauthorizedHandler: a session teardown records one pending
// redirect to the login route, which the first Navigate or TakeRedirect
// consumes.
type Policy struct {
	loginRoute string
	log        *logging.Logger

	mu        sync.Mutex
	pending   bool
	teardowns int
}

// NewPolicy creates a Policy redirecting to loginRoute ("" means LoginRoute).
func NewPolicy(loginRoute string, log *logging.Logger) *Policy {
	if loginRoute == "" {
		loginRoute = LoginRoute
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Policy{loginRoute: loginRoute, log: log}
}

// OnUnauthorized records a pending redirect to login.
func (p *Policy) OnUnauthorized(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.teardowns++
	if p.pending {
		return
	}
	p.pending = true
	p.log.LogSecurityEvent(ctx, "session_teardown", map[string]interface{}{"redirect": p.loginRoute})
}

// Pending reports whether a teardown redirect is waiting.
func (p *Policy) Pending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending
}

// Teardowns returns how many teardowns have been reported.
func (p *Policy) Teardowns() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.teardowns
}

// TakeRedirect returns the login route once per teardown.
func (p *Policy) TakeRedirect() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.pending {
		return "", false
	}
	p.pending = false
	return p.loginRoute, true
}

// Navigate resolves a guard decision into at most one redirect. A pending
// teardown redirect is consumed here; when the caller is already on the
// login page it is dropped rather than followed.
func (p *Policy) Navigate(d Decision) (string, bool) {
	target, teardown := p.TakeRedirect()
	if d.State == StateOnLoginPage {
		return "", false
	}
	if d.Action == Redirect {
		return d.Target, true
	}
	if teardown {
		return target, true
	}
	return "", false
}
