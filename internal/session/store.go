// Package session holds the console's bearer token and advisory user profile.
//
// A Store keeps the authoritative copy in memory and writes every change
// through to a Backend, so that a session survives process restarts (file
// backend) or is shared across console replicas (redis backend). Store
// operations never fail: backend errors are logged and absence is reported
// as a boolean.
package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/autounite/admin-console/internal/logging"
)

// Keys used in the backend, mirroring the dashboard's local storage layout.
const (
	TokenKey   = "auth_token"
	ProfileKey = "user"
)

const backendTimeout = 3 * time.Second

// EventKind identifies a session change.
type EventKind int

const (
	EventTokenSet EventKind = iota + 1
	EventTokenCleared
	EventProfileSet
	EventProfileCleared
)

func (k EventKind) String() string {
	switch k {
	case EventTokenSet:
		return "token_set"
	case EventTokenCleared:
		return "token_cleared"
	case EventProfileSet:
		return "profile_set"
	case EventProfileCleared:
		return "profile_cleared"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers after the store changes.
type Event struct {
	Kind EventKind
	// Authenticated is the store's state after the change.
	Authenticated bool
}

// Store is the session store. It is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	backend Backend
	log     *logging.Logger

	token   string
	profile *Profile

	subMu  sync.Mutex
	subs   map[int]func(Event)
	nextID int
}

// New creates a store over backend and loads any persisted session.
// A nil backend keeps the session in memory only.
func New(backend Backend, log *logging.Logger) *Store {
	if backend == nil {
		backend = NewMemoryBackend(0)
	}
	if log == nil {
		log = logging.Discard()
	}
	s := &Store{
		backend: backend,
		log:     log,
		subs:    make(map[int]func(Event)),
	}
	s.load()
	return s
}

func (s *Store) load() {
	ctx, cancel := context.WithTimeout(context.Background(), backendTimeout)
	defer cancel()

	if token, ok, err := s.backend.Get(ctx, TokenKey); err != nil {
		s.log.WithError(err).Warn("session: failed to load token")
	} else if ok {
		s.token = token
	}

	raw, ok, err := s.backend.Get(ctx, ProfileKey)
	if err != nil {
		s.log.WithError(err).Warn("session: failed to load profile")
		return
	}
	if !ok || raw == "" {
		return
	}
	var p Profile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		s.log.WithError(err).Warn("session: discarding unreadable profile")
		return
	}
	s.profile = &p
}

// SetToken stores token. An empty token clears it.
func (s *Store) SetToken(token string) {
	if token == "" {
		s.ClearToken()
		return
	}
	s.mu.Lock()
	s.token = token
	s.persist(TokenKey, token)
	s.mu.Unlock()

	s.notify(EventTokenSet, true)
}

// Token returns the bearer token, if one is stored.
func (s *Store) Token() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}

// ClearToken removes the bearer token.
func (s *Store) ClearToken() {
	s.mu.Lock()
	had := s.token != ""
	s.token = ""
	s.remove(TokenKey)
	s.mu.Unlock()

	if had {
		s.notify(EventTokenCleared, false)
	}
}

// SetProfile replaces the stored profile wholesale.
func (s *Store) SetProfile(p Profile) {
	data, err := json.Marshal(p)
	if err != nil {
		s.log.WithError(err).Warn("session: failed to encode profile")
		return
	}

	s.mu.Lock()
	s.profile = &p
	s.persist(ProfileKey, string(data))
	authed := s.token != ""
	s.mu.Unlock()

	s.notify(EventProfileSet, authed)
}

// Profile returns a copy of the stored profile, if any.
func (s *Store) Profile() (Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.profile == nil {
		return Profile{}, false
	}
	return *s.profile, true
}

// ClearProfile removes the stored profile.
func (s *Store) ClearProfile() {
	s.mu.Lock()
	had := s.profile != nil
	s.profile = nil
	s.remove(ProfileKey)
	authed := s.token != ""
	s.mu.Unlock()

	if had {
		s.notify(EventProfileCleared, authed)
	}
}

// Clear removes both token and profile. It reports whether a token was
// present, i.e. whether an authenticated session was torn down.
func (s *Store) Clear() bool {
	s.mu.Lock()
	hadToken := s.token != ""
	hadProfile := s.profile != nil
	s.token = ""
	s.profile = nil
	s.remove(TokenKey, ProfileKey)
	s.mu.Unlock()

	if hadToken {
		s.notify(EventTokenCleared, false)
	}
	if hadProfile {
		s.notify(EventProfileCleared, false)
	}
	return hadToken
}

// IsAuthenticated reports whether a token is present.
func (s *Store) IsAuthenticated() bool {
	_, ok := s.Token()
	return ok
}

// IsAdmin reports whether a profile with the admin role is present.
func (s *Store) IsAdmin() bool {
	p, ok := s.Profile()
	return ok && p.IsAdmin()
}

// Subscribe registers fn for change notifications and returns a function
// that removes it. fn runs synchronously on the goroutine making the change.
func (s *Store) Subscribe(fn func(Event)) func() {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) notify(kind EventKind, authenticated bool) {
	s.subMu.Lock()
	fns := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	ev := Event{Kind: kind, Authenticated: authenticated}
	for _, fn := range fns {
		fn(ev)
	}
}

// persist and remove must be called with s.mu held.
func (s *Store) persist(key, value string) {
	ctx, cancel := context.WithTimeout(context.Background(), backendTimeout)
	defer cancel()
	if err := s.backend.Set(ctx, key, value); err != nil {
		s.log.WithError(err).WithField("key", key).Warn("session: failed to persist")
	}
}

func (s *Store) remove(keys ...string) {
	ctx, cancel := context.WithTimeout(context.Background(), backendTimeout)
	defer cancel()
	if err := s.backend.Delete(ctx, keys...); err != nil {
		s.log.WithError(err).Warn("session: failed to remove keys")
	}
}
