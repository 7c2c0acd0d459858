// Package server is an in-process stand-in for the campus backend's /auth API. It
// backs the integration tests and cmd/server.
package server

import (
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/jrsteele09/campus-auth-client/internal/config"
	"github.com/jrsteele09/campus-auth-client/server/tokens"
	"github.com/jrsteele09/campus-auth-client/server/users"
)

// Config is the configuration the stub reads.
type Config interface {
	config.StubConfig
	GetEnv() string
}

type Repos struct {
	Users         users.UserRepo
	RefreshTokens tokens.Repo
}

type Server struct {
	env        string // Environment (e.g., "DEV", "PROD")
	mux        *http.ServeMux
	routes     []string
	config     Config
	repos      Repos
	access     *tokens.Creator
	refresh    *tokens.RefreshManager
	revoked    *tokens.RevocationList
	log        zerolog.Logger
	autoEnroll bool

	refreshCalls atomic.Int64
}

type Option func(*Server)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithAutoEnroll makes registration enroll the new user immediately.
func WithAutoEnroll(enabled bool) Option {
	return func(s *Server) { s.autoEnroll = enabled }
}

func New(cfg Config, repos Repos, opts ...Option) (*Server, error) {
	s := &Server{
		env:     cfg.GetEnv(),
		mux:     http.NewServeMux(),
		config:  cfg,
		repos:   repos,
		access:  tokens.NewCreator(tokens.NewHMACSigner(cfg.GetJWTSecret()), cfg.GetAccessTokenExpiry()),
		refresh: tokens.NewRefreshManager(repos.RefreshTokens, cfg.GetRefreshTokenExpiry()),
		revoked: tokens.NewRevocationList(),
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.InitialiseSystem(); err != nil {
		return nil, fmt.Errorf("[Server New] Failed to initialise the system: %w", err)
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

// RefreshCalls reports how many requests reached the refresh endpoint.
func (s *Server) RefreshCalls() int64 {
	return s.refreshCalls.Load()
}

// SetAccessTokenExpiry changes the lifetime of access tokens issued from now on.
// A negative expiry issues tokens that are already expired.
func (s *Server) SetAccessTokenExpiry(d time.Duration) {
	s.access.SetExpiry(d)
}

// RevokeRefreshTokens invalidates the live refresh token of username.
func (s *Server) RevokeRefreshTokens(username string) {
	s.refresh.Revoke(username)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			s.logRoute(parts[0], parts[1], "")
		} else {
			s.logRoute("", parts[0], "")
		}
	}
}

func (s *Server) logRoute(method, path, errorText string) {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	color, ok := methodColors[method]
	if !ok {
		color = Gray
	}
	line := fmt.Sprintf("[%-19s] %s", color+paddedMethod+ResetColor, path)
	if errorText != "" {
		line += " " + Red + errorText + ResetColor
	}
	s.log.Info().Msg(line)
}
