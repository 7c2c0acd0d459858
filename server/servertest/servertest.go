// Package servertest runs the stub backend on an httptest server.
package servertest

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/campus-auth-client/internal/config"
	"github.com/jrsteele09/campus-auth-client/server"
	refreshrepofake "github.com/jrsteele09/campus-auth-client/server/tokens/repofake"
	fakeuserrepo "github.com/jrsteele09/campus-auth-client/server/users/repofake"
)

const (
	AdminUsername = "admin"
	AdminPassword = "adminpw"
)

// Config is a fixed stub configuration. The zero value uses the defaults below.
type Config struct {
	config.Stub
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
}

var _ server.Config = Config{}

func (Config) GetEnv() string           { return "TEST" }
func (Config) GetJWTSecret() string     { return "test-secret" }
func (Config) GetAdminUsername() string { return AdminUsername }
func (Config) GetAdminPassword() string { return AdminPassword }

func (c Config) GetAccessTokenExpiry() time.Duration {
	if c.AccessTokenExpiry == 0 {
		return 15 * time.Minute
	}
	return c.AccessTokenExpiry
}

func (c Config) GetRefreshTokenExpiry() time.Duration {
	if c.RefreshTokenExpiry == 0 {
		return time.Hour
	}
	return c.RefreshTokenExpiry
}

// Backend is a running stub.
type Backend struct {
	*server.Server
	HTTP          *httptest.Server
	Users         *fakeuserrepo.FakeUserRepo
	RefreshTokens *refreshrepofake.FakeRefreshTokenRepo
}

// BaseURL is what clients use as their API base URL.
func (b *Backend) BaseURL() string {
	return b.HTTP.URL + server.APIPrefix
}

// Start runs a stub backend until the test ends.
func Start(t *testing.T, cfg Config, opts ...server.Option) *Backend {
	t.Helper()

	b := &Backend{
		Users:         fakeuserrepo.NewFakeUserRepo(),
		RefreshTokens: refreshrepofake.NewFakeRefreshTokenRepo(),
	}
	srv, err := server.New(cfg, server.Repos{Users: b.Users, RefreshTokens: b.RefreshTokens}, opts...)
	require.NoError(t, err)

	b.Server = srv
	b.HTTP = httptest.NewServer(srv)
	t.Cleanup(b.HTTP.Close)
	return b
}
