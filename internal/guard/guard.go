// Package guard decides whether a route may render for the current session.
//
// A Guard never trusts the stored token alone: every protected route (and the
// login route, when a token exists) is confirmed with a live profile fetch.
// Navigation itself is decided by a Policy, which also receives the request
// decorator's teardown notifications.
package guard

import (
	"context"
	"sync"

	"github.com/autounite/admin-console/internal/logging"
	"github.com/autounite/admin-console/internal/session"
)

// Default routes.
const (
	LoginRoute = "/login"
	HomeRoute  = "/"
)

// State is where a guard check stands.
type State int

const (
	StateChecking State = iota
	StateAuthenticated
	StateUnauthenticated
	StateOnLoginPage
)

func (s State) String() string {
	switch s {
	case StateChecking:
		return "checking"
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthenticated:
		return "unauthenticated"
	case StateOnLoginPage:
		return "on_login_page"
	default:
		return "unknown"
	}
}

// Action is what the caller should do with the route.
type Action int

const (
	// Render the requested route.
	Render Action = iota
	// Redirect to Decision.Target.
	Redirect
)

// Decision is the outcome of Check.
type Decision struct {
	State  State
	Action Action
	// Target is set for Redirect.
	Target string
	// Profile is the freshly fetched profile when State is StateAuthenticated.
	Profile session.Profile
	// Err is the profile fetch failure, if one caused the decision.
	Err error
}

// ProfileFetcher confirms a session with the backend.
type ProfileFetcher interface {
	Me(ctx context.Context) (session.Profile, error)
}

// Guard checks routes against one session.
type Guard struct {
	store   *session.Store
	fetcher ProfileFetcher
	log     *logging.Logger

	loginRoute string
	homeRoute  string

	mu    sync.Mutex
	state State
}

// Option customizes a Guard.
type Option func(*Guard)

// WithRoutes overrides the login and home routes.
func WithRoutes(login, home string) Option {
	return func(g *Guard) {
		g.loginRoute = login
		g.homeRoute = home
	}
}

// WithLogger sets the logger.
func WithLogger(log *logging.Logger) Option {
	return func(g *Guard) { g.log = log }
}

// New creates a Guard for store that confirms sessions with fetcher.
func New(store *session.Store, fetcher ProfileFetcher, opts ...Option) *Guard {
	g := &Guard{
		store:      store,
		fetcher:    fetcher,
		log:        logging.Discard(),
		loginRoute: LoginRoute,
		homeRoute:  HomeRoute,
		state:      StateChecking,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// State returns the state of the latest check.
func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *Guard) set(s State) {
	g.mu.Lock()
	g.state = s
	g.mu.Unlock()
}

// Check decides the fate of route.
//
// On the login route a valid session is sent home and anything else renders
// the login page. On any other route a missing token redirects to login
// without contacting the backend; otherwise the profile is fetched and the
// route renders only if that succeeds.
func (g *Guard) Check(ctx context.Context, route string) Decision {
	g.set(StateChecking)
	_, hasToken := g.store.Token()

	if route == g.loginRoute {
		d := Decision{State: StateOnLoginPage, Action: Render}
		if hasToken {
			p, err := g.fetcher.Me(ctx)
			if err == nil {
				d = Decision{State: StateAuthenticated, Action: Redirect, Target: g.homeRoute, Profile: p}
			} else {
				d.Err = err
			}
		}
		g.set(d.State)
		return d
	}

	if !hasToken {
		g.set(StateUnauthenticated)
		return Decision{State: StateUnauthenticated, Action: Redirect, Target: g.loginRoute}
	}

	p, err := g.fetcher.Me(ctx)
	if err != nil {
		g.log.WithContext(ctx).WithError(err).WithField("route", route).Debug("session check failed")
		g.set(StateUnauthenticated)
		return Decision{State: StateUnauthenticated, Action: Redirect, Target: g.loginRoute, Err: err}
	}
	g.set(StateAuthenticated)
	return Decision{State: StateAuthenticated, Action: Render, Profile: p}
}
