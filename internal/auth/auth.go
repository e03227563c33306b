// Package auth signs staff members in and out and keeps the stored profile
// in step with the backend.
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/autounite/admin-console/internal/apiclient"
	apierrors "github.com/autounite/admin-console/internal/errors"
	"github.com/autounite/admin-console/internal/session"
)

const (
	registerPath = "/api/v1/auth/register"
	loginPath    = "/api/v1/auth/login"
	mePath       = "/api/v1/auth/me"
)

// Failure messages used when the backend does not supply one.
const (
	MsgRegisterFailed = "Registration failed"
	MsgLoginFailed    = "Login failed"
	MsgMeFailed       = "Failed to get user"
	MsgNoToken        = "No authentication token found"
)

// Credentials is the result of a successful login or registration.
type Credentials struct {
	Token string          `json:"token"`
	User  session.Profile `json:"user"`
}

// Registration is the body of a register call.
type Registration struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// Service talks to the backend auth endpoints.
type Service struct {
	client *apiclient.Client
}

// New creates a Service on top of client. Session changes go to the
// client's store.
func New(client *apiclient.Client) *Service {
	return &Service{client: client}
}

// Register creates an account and signs it in.
func (s *Service) Register(ctx context.Context, r Registration) (*Credentials, error) {
	r.Email = strings.TrimSpace(r.Email)
	return s.signIn(ctx, registerPath, r, MsgRegisterFailed)
}

// Login exchanges credentials for a token. On success the token and profile
// are stored.
func (s *Service) Login(ctx context.Context, email, password string) (*Credentials, error) {
	body := map[string]string{"email": strings.TrimSpace(email), "password": password}
	return s.signIn(ctx, loginPath, body, MsgLoginFailed)
}

func (s *Service) signIn(ctx context.Context, path string, body interface{}, defaultMsg string) (*Credentials, error) {
	var out apiclient.Envelope[*Credentials]
	req := &apiclient.Request{Method: http.MethodPost, Path: path, Body: body, Public: true}
	if err := s.client.Call(ctx, req, defaultMsg, &out); err != nil {
		return nil, err
	}
	if !out.Success || out.Data == nil || out.Data.Token == "" {
		return nil, apierrors.API(http.StatusOK, messageOr(out.Message, defaultMsg))
	}

	store := s.client.Session()
	store.SetToken(out.Data.Token)
	store.SetProfile(out.Data.User)
	return out.Data, nil
}

// Me fetches the signed-in profile and replaces the stored copy. Without a
// stored token it fails without contacting the backend. A 401 clears the
// session through the request decorator.
func (s *Service) Me(ctx context.Context) (session.Profile, error) {
	if _, ok := s.client.Session().Token(); !ok {
		return session.Profile{}, apierrors.NoSession(MsgNoToken)
	}

	var out apiclient.Envelope[*struct {
		User session.Profile `json:"user"`
	}]
	if err := s.client.Call(ctx, &apiclient.Request{Method: http.MethodGet, Path: mePath}, MsgMeFailed, &out); err != nil {
		return session.Profile{}, err
	}
	if !out.Success || out.Data == nil {
		return session.Profile{}, apierrors.API(http.StatusOK, messageOr(out.Message, MsgMeFailed))
	}

	s.client.Session().SetProfile(out.Data.User)
	return out.Data.User, nil
}

// Logout discards the local session. The backend keeps no logout state.
func (s *Service) Logout() {
	s.client.Session().Clear()
}

func messageOr(msg, fallback string) string {
	if msg = strings.TrimSpace(msg); msg != "" {
		return msg
	}
	return fallback
}
