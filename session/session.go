// Package session is the caller facing surface of the client: login, logout,
// enrollment, registration and profile calls, the generic authenticated call with
// transparent refresh, and the reactive "current identity" state.
package session

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/rs/zerolog"

	"github.com/jrsteele09/campus-auth-client/apiclient"
	"github.com/jrsteele09/campus-auth-client/authmodel"
	"github.com/jrsteele09/campus-auth-client/credentials"
	"github.com/jrsteele09/campus-auth-client/internal/errors"
	"github.com/jrsteele09/campus-auth-client/refresh"
)

var (
	ErrNotAuthenticated = errors.ErrNotAuthenticated
	ErrForbidden        = errors.ErrForbidden
)

const defaultMaxRefreshRetries = 1

// Executor sends a single call. *apiclient.Executor satisfies it.
type Executor interface {
	Execute(ctx context.Context, req apiclient.Request) (json.RawMessage, error)
}

// Store is the credential store the session owns. *credentials.Store satisfies it.
type Store interface {
	Tokens() (credentials.Pair, bool)
	Rotate(p credentials.Pair) bool
	Save(p credentials.Pair, id credentials.Identity)
	UpdateIdentity(id credentials.Identity) bool
	Clear()
	Snapshot() (*credentials.Pair, *credentials.Identity)
	Repair() bool
}

// ForcedLogoutFunc runs once each time a failed refresh tears the session down.
type ForcedLogoutFunc func(err error)

// AdminCredentials authorise a registration. They travel in the request body.
type AdminCredentials struct {
	Username string
	Password string
}

type Session struct {
	exec       Executor
	store      Store
	coord      *refresh.Coordinator
	log        zerolog.Logger
	maxRetries int
	onForced   ForcedLogoutFunc

	lock        sync.RWMutex
	state       State
	subscribers map[int]chan State
	nextSubID   int
}

type Option func(*Session)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Session) { s.log = l }
}

// WithForcedLogoutHandler registers the callback used to navigate away from
// authenticated screens after the session has been torn down.
func WithForcedLogoutHandler(fn ForcedLogoutFunc) Option {
	return func(s *Session) { s.onForced = fn }
}

// WithMaxRefreshRetries bounds how often one call is replayed after a refresh.
// Values below zero are treated as zero.
func WithMaxRefreshRetries(n int) Option {
	return func(s *Session) {
		if n < 0 {
			n = 0
		}
		s.maxRetries = n
	}
}

// New builds the session and restores any stored identity. The store is read once;
// no network call is made. Settling is false by the time New returns.
func New(exec Executor, store Store, opts ...Option) *Session {
	s := &Session{
		exec:        exec,
		store:       store,
		log:         zerolog.Nop(),
		maxRetries:  defaultMaxRefreshRetries,
		state:       State{Settling: true},
		subscribers: make(map[int]chan State),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.coord = refresh.NewCoordinator(exec, store,
		refresh.WithLogger(s.log),
		refresh.WithFailureHandler(s.forceLogout),
	)
	s.restore()
	return s
}

func (s *Session) restore() {
	if s.store.Repair() {
		s.log.Warn().Msg("stored session was incomplete and has been cleared")
	}

	pair, id := s.store.Snapshot()
	var restored *credentials.Identity
	if pair != nil && id != nil {
		restored = id
		s.log.Info().Str("username", id.Username).Str("role", string(id.Role)).Msg("session restored")
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	s.state = State{Identity: restored, Settling: false}
	s.publishLocked()
}

// Coordinator exposes the refresh coordinator, for callers that compose their own
// request loop.
func (s *Session) Coordinator() *refresh.Coordinator {
	return s.coord
}

// Login authenticates against the backend. On success the credential pair and the
// identity are stored together and published. On failure nothing changes.
func (s *Session) Login(ctx context.Context, username, password string) (*authmodel.LoginResponse, error) {
	raw, err := s.exec.Execute(ctx, apiclient.Request{
		Method: http.MethodPost,
		Path:   authmodel.PathLogin,
		Body:   authmodel.LoginRequest{Username: username, Password: password},
	})
	if err != nil {
		return nil, err
	}

	resp, err := apiclient.Decode[authmodel.LoginResponse](raw)
	if err != nil {
		return nil, err
	}
	if !resp.Success || resp.AccessToken == "" {
		msg := resp.Error
		if msg == "" {
			msg = "login was not accepted"
		}
		return nil, &apiclient.Error{Kind: apiclient.KindAuth, Status: http.StatusOK, Message: msg}
	}

	s.coord.Advance(func() {
		s.store.Save(resp.Pair(), resp.User)
	})
	s.setIdentity(&resp.User)
	s.log.Info().Str("username", resp.User.Username).Msg("logged in")
	return &resp, nil
}

// Logout asks the backend to invalidate the session, then clears local state
// whatever the outcome.
func (s *Session) Logout(ctx context.Context) {
	if _, ok := s.store.Tokens(); ok {
		_, err := s.exec.Execute(ctx, apiclient.Request{
			Method:       http.MethodPost,
			Path:         authmodel.PathLogout,
			RequiresAuth: true,
		})
		if err != nil {
			s.log.Warn().Err(err).Msg("server side logout failed")
		}
	}

	s.coord.Advance(s.store.Clear)
	s.setIdentity(nil)
	s.log.Info().Msg("logged out")
}

// Enroll activates a registered user with the secret handed out at registration.
func (s *Session) Enroll(ctx context.Context, username, secret string) (*authmodel.EnrollResponse, error) {
	return call[authmodel.EnrollResponse](ctx, s, apiclient.Request{
		Method: http.MethodPost,
		Path:   authmodel.PathEnroll,
		Body:   authmodel.EnrollRequest{Username: username, EnrollmentSecret: secret},
	})
}

// Register creates a user. The admin's credentials authorise the call in place of a
// bearer token, so it works without a session.
func (s *Session) Register(ctx context.Context, admin AdminCredentials, user authmodel.NewUser) (*authmodel.RegisterResponse, error) {
	return call[authmodel.RegisterResponse](ctx, s, apiclient.Request{
		Method: http.MethodPost,
		Path:   authmodel.PathRegister,
		Body: authmodel.RegisterRequest{
			AdminUsername: admin.Username,
			AdminPassword: admin.Password,
			UserData:      user,
		},
	})
}

func (s *Session) Profile(ctx context.Context) (*authmodel.Profile, error) {
	resp, err := call[authmodel.ProfileResponse](ctx, s, apiclient.Request{
		Method:       http.MethodGet,
		Path:         authmodel.PathProfile,
		RequiresAuth: true,
	})
	if err != nil {
		return nil, err
	}
	return &resp.Profile, nil
}

func (s *Session) Health(ctx context.Context) (*authmodel.HealthResponse, error) {
	return call[authmodel.HealthResponse](ctx, s, apiclient.Request{
		Method: http.MethodGet,
		Path:   authmodel.PathHealth,
	})
}

// Do sends req and returns the body of a successful response. When an authenticated
// call reports an expired access token the credentials are refreshed and the call is
// replayed, at most maxRetries times. An expiry left after the last replay is
// returned as an auth error. If the refresh fails the session is gone and the error
// wraps refresh.ErrSessionExpired.
func (s *Session) Do(ctx context.Context, req apiclient.Request) (json.RawMessage, error) {
	for attempt := 0; ; attempt++ {
		seen := s.coord.Generation()

		raw, err := s.exec.Execute(ctx, req)
		if err == nil {
			return raw, nil
		}

		var apiErr *apiclient.Error
		if !errors.As(err, &apiErr) || apiErr.Kind != apiclient.KindTokenExpired {
			return nil, err
		}
		if !req.RequiresAuth || attempt >= s.maxRetries {
			return nil, apiErr.AsAuth()
		}

		if err := s.coord.Refresh(ctx, seen); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				return nil, err
			}
			return nil, &apiclient.Error{
				Kind:    apiclient.KindAuth,
				Status:  apiErr.Status,
				Message: apiErr.Message,
				Code:    apiErr.Code,
				Err:     err,
			}
		}
		s.log.Debug().Str("path", req.Path).Int("attempt", attempt+1).Msg("replaying call with refreshed credentials")
	}
}

func call[T any](ctx context.Context, s *Session, req apiclient.Request) (*T, error) {
	raw, err := s.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	v, err := apiclient.Decode[T](raw)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// forceLogout runs after the coordinator has cleared the store.
func (s *Session) forceLogout(err error) {
	s.setIdentity(nil)
	s.log.Warn().Err(err).Msg("session expired, logged out")
	if s.onForced != nil {
		s.onForced(err)
	}
}
