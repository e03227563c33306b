// Package console serves the server-rendered admin dashboard.
//
// Each browser gets its own session store, namespaced in a shared backend
// (memory or redis) under the id carried by the console_session cookie.
// Every request builds a scope around that store: a request decorator bound
// to it, an auth service, a route guard and a navigation policy.
package console

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/robfig/cron/v3"

	"github.com/autounite/admin-console/internal/apiclient"
	"github.com/autounite/admin-console/internal/guard"
	"github.com/autounite/admin-console/internal/logging"
	"github.com/autounite/admin-console/internal/metrics"
	"github.com/autounite/admin-console/internal/middleware"
	"github.com/autounite/admin-console/internal/session"
)

const (
	limiterIdle     = 30 * time.Minute
	shutdownTimeout = 10 * time.Second
)

// Options configures a Server.
type Options struct {
	Addr string
	API  apiclient.Config
	// Backend holds every browser's session keys.
	Backend      session.Backend
	SessionTTL   time.Duration
	SecureCookie bool
	LoginRPS     float64
	LoginBurst   int
	Logger       *logging.Logger
}

// Server is the web console.
type Server struct {
	opts    Options
	log     *logging.Logger
	api     *apiclient.Client
	backend session.Backend
	views   *views
	limiter *middleware.RateLimiter
	cron    *cron.Cron
	router  *mux.Router
}

// New builds the console and its routes.
func New(opts Options) (*Server, error) {
	if opts.Backend == nil {
		return nil, fmt.Errorf("console: session backend is required")
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 24 * time.Hour
	}
	if opts.LoginRPS <= 0 {
		opts.LoginRPS = 1
	}
	if opts.API.Logger == nil {
		opts.API.Logger = opts.Logger
	}

	// The base client is never used directly; each request binds its own store.
	api, err := apiclient.New(opts.API, session.New(session.NewMemoryBackend(0), opts.Logger), nil)
	if err != nil {
		return nil, err
	}
	v, err := loadViews()
	if err != nil {
		return nil, err
	}

	s := &Server{
		opts:    opts,
		log:     opts.Logger,
		api:     api,
		backend: opts.Backend,
		views:   v,
		cron:    cron.New(),
	}
	s.limiter = middleware.NewRateLimiter(opts.LoginRPS, opts.LoginBurst, opts.Logger, s.loginThrottled)
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(
		middleware.NewTracingMiddleware(s.log).Handler,
		middleware.RecoveryMiddleware(s.log),
		middleware.MetricsMiddleware(),
	)

	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	r.Handle("/login", s.limiter.Handler(s.withScope(http.HandlerFunc(s.handleLoginSubmit)))).Methods(http.MethodPost)
	r.Handle("/logout", s.withScope(http.HandlerFunc(s.handleLogout))).Methods(http.MethodPost)

	guarded := r.NewRoute().Subrouter()
	guarded.Use(s.withScope, middleware.NewAuthMiddleware(s.scopeOf, s.log, nil).Handler)
	guarded.HandleFunc("/login", s.handleLoginPage).Methods(http.MethodGet)
	guarded.HandleFunc("/", s.handleHome).Methods(http.MethodGet)
	guarded.HandleFunc("/queries", s.handleQueries).Methods(http.MethodGet)
	guarded.HandleFunc("/users", s.handleUsers).Methods(http.MethodGet)
	guarded.HandleFunc("/requests", s.handleRequests).Methods(http.MethodGet)
	guarded.HandleFunc("/requests/{id}", s.handleRequestUpdate).Methods(http.MethodPost)
	guarded.HandleFunc("/requests/{id}/delete", s.handleRequestDelete).Methods(http.MethodPost)

	return r
}

// Handler returns the console's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// StartHousekeeping schedules periodic cleanup: expired in-memory sessions
// and idle login limiters.
func (s *Server) StartHousekeeping() error {
	if mem, ok := s.backend.(*session.MemoryBackend); ok {
		if _, err := s.cron.AddFunc("@every 5m", func() {
			if n := mem.Sweep(); n > 0 {
				s.log.WithField("removed", n).Debug("swept expired console sessions")
			}
		}); err != nil {
			return fmt.Errorf("schedule session sweep: %w", err)
		}
	}
	if _, err := s.cron.AddFunc("@every 10m", func() {
		if n := s.limiter.Prune(limiterIdle); n > 0 {
			s.log.WithField("removed", n).Debug("pruned idle login limiters")
		}
	}); err != nil {
		return fmt.Errorf("schedule limiter prune: %w", err)
	}
	s.cron.Start()
	return nil
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	if err := s.StartHousekeeping(); err != nil {
		return err
	}
	defer s.cron.Stop()

	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.opts.Addr).Info("console listening")
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.log.Info("console stopped")
	return nil
}

var _ middleware.Scope = (*scope)(nil)
var _ apiclient.UnauthorizedHandler = (*guard.Policy)(nil)
