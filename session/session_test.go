package session_test

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/campus-auth-client/apiclient"
	"github.com/jrsteele09/campus-auth-client/authmodel"
	"github.com/jrsteele09/campus-auth-client/credentials"
	"github.com/jrsteele09/campus-auth-client/credentials/filestore"
	"github.com/jrsteele09/campus-auth-client/credentials/storefake"
	"github.com/jrsteele09/campus-auth-client/refresh"
	"github.com/jrsteele09/campus-auth-client/server/servertest"
	"github.com/jrsteele09/campus-auth-client/session"
)

const (
	pathLogin   = "/api" + authmodel.PathLogin
	pathRefresh = "/api" + authmodel.PathRefresh
	pathLogout  = "/api" + authmodel.PathLogout
	pathDegrees = "/api/degrees"
)

func loginA1(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, map[string]any{
		"success":      true,
		"accessToken":  "A1",
		"refreshToken": "R1",
		"user":         map[string]any{"username": "admin", "organizationalRole": "admin"},
	})
}

// degreesFor answers with a list when presented accessToken and with an expiry otherwise.
func degreesFor(accessToken string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+accessToken {
			respond(w, http.StatusUnauthorized, map[string]any{"success": false, "error": "jwt expired", "code": authmodel.CodeTokenExpired})
			return
		}
		respond(w, http.StatusOK, map[string]any{"success": true, "degrees": []string{"BSc-1"}})
	}
}

func TestLoginScenario(t *testing.T) {
	backend := newScripted(t, map[string]http.HandlerFunc{pathLogin: loginA1})
	c := newClient(t, backend.URL+"/api")
	require.Equal(t, session.State{}, c.State())
	before := c.Coordinator().Generation()

	resp, err := c.Login(context.Background(), "admin", "adminpw")
	require.NoError(t, err)
	require.True(t, resp.Success)
	require.Equal(t, before+1, c.Coordinator().Generation(), "login starts a new credential generation")
	require.Equal(t, refresh.Idle, c.Coordinator().State())

	pair, ok := c.store.Tokens()
	require.True(t, ok)
	require.Equal(t, credentials.Pair{AccessToken: "A1", RefreshToken: "R1"}, pair)

	st := c.State()
	require.False(t, st.Settling)
	require.NotNil(t, st.Identity)
	require.Equal(t, "admin", st.Identity.Username)
	require.Equal(t, credentials.RoleAdmin, st.Identity.Role)
	require.True(t, c.IsAuthenticated())
	require.Equal(t, []string{""}, backend.Bearers(pathLogin), "login is a public call")
}

func TestLoginFailureLeavesStateUntouched(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		kind    apiclient.Kind
	}{
		{
			name: "bad credentials",
			handler: func(w http.ResponseWriter, r *http.Request) {
				respond(w, http.StatusUnauthorized, map[string]any{"success": false, "error": "invalid credentials"})
			},
			kind: apiclient.KindAuth,
		},
		{
			name: "success false",
			handler: func(w http.ResponseWriter, r *http.Request) {
				respond(w, http.StatusOK, map[string]any{"success": false, "error": "user not enrolled"})
			},
			kind: apiclient.KindAuth,
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				respond(w, http.StatusBadGateway, map[string]any{"error": "ledger unavailable"})
			},
			kind: apiclient.KindServer,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newScripted(t, map[string]http.HandlerFunc{pathLogin: tt.handler})
			fake := storefake.NewFakeBackend()
			c := newClientWithBackend(t, backend.URL+"/api", fake)

			_, err := c.Login(context.Background(), "admin", "nope")
			require.Error(t, err)
			require.Equal(t, tt.kind, apiclient.KindOf(err))

			require.Nil(t, c.State().Identity)
			require.Zero(t, fake.Sets())
		})
	}
}

func TestExpiredCallIsReplayedAfterRefresh(t *testing.T) {
	var refreshBody authmodel.RefreshRequest
	backend := newScripted(t, map[string]http.HandlerFunc{
		pathLogin: loginA1,
		pathRefresh: func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewDecoder(r.Body).Decode(&refreshBody)
			respond(w, http.StatusOK, map[string]any{"success": true, "accessToken": "A2", "refreshToken": "R2"})
		},
		pathDegrees: degreesFor("A2"),
	})
	c := newClient(t, backend.URL+"/api")
	_, err := c.Login(context.Background(), "admin", "adminpw")
	require.NoError(t, err)

	raw, err := c.Do(context.Background(), apiclient.Request{Method: http.MethodGet, Path: "/degrees", RequiresAuth: true})
	require.NoError(t, err)
	require.JSONEq(t, `{"success":true,"degrees":["BSc-1"]}`, string(raw))

	require.Equal(t, []string{"Bearer A1", "Bearer A2"}, backend.Bearers(pathDegrees))
	require.Equal(t, []string{""}, backend.Bearers(pathRefresh), "refresh token travels in the body")
	require.Equal(t, "R1", refreshBody.RefreshToken)

	pair, _ := c.store.Tokens()
	require.Equal(t, credentials.Pair{AccessToken: "A2", RefreshToken: "R2"}, pair)
	require.Equal(t, "admin", c.State().Identity.Username)
}

func TestRefreshFailureForcesLogout(t *testing.T) {
	tests := []struct {
		name    string
		refresh http.HandlerFunc
	}{
		{
			name: "success false",
			refresh: func(w http.ResponseWriter, r *http.Request) {
				respond(w, http.StatusOK, map[string]any{"success": false})
			},
		},
		{
			name: "rejected",
			refresh: func(w http.ResponseWriter, r *http.Request) {
				respond(w, http.StatusUnauthorized, map[string]any{"success": false, "error": "refresh token revoked"})
			},
		},
		{
			name: "refresh token expired",
			refresh: func(w http.ResponseWriter, r *http.Request) {
				respond(w, http.StatusUnauthorized, map[string]any{"success": false, "error": "expired", "code": authmodel.CodeTokenExpired})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newScripted(t, map[string]http.HandlerFunc{
				pathLogin:   loginA1,
				pathRefresh: tt.refresh,
				pathDegrees: degreesFor("never"),
			})

			var forced atomic.Int32
			fake := storefake.NewFakeBackend()
			c := newClientWithBackend(t, backend.URL+"/api", fake, session.WithForcedLogoutHandler(func(err error) {
				assert.ErrorIs(t, err, refresh.ErrSessionExpired)
				forced.Add(1)
			}))
			_, err := c.Login(context.Background(), "admin", "adminpw")
			require.NoError(t, err)

			updates, unsubscribe := c.Subscribe()
			defer unsubscribe()
			<-updates

			const callers = 5
			var wg sync.WaitGroup
			errs := make(chan error, callers)
			for i := 0; i < callers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := c.Do(context.Background(), apiclient.Request{Path: "/degrees", RequiresAuth: true})
					errs <- err
				}()
			}
			wg.Wait()
			close(errs)

			for err := range errs {
				require.Error(t, err)
				require.Equal(t, apiclient.KindAuth, apiclient.KindOf(err))
				require.ErrorIs(t, err, apiclient.ErrAuth)
				require.ErrorIs(t, err, refresh.ErrSessionExpired)
			}

			require.Equal(t, 1, backend.Calls(pathRefresh))
			require.Equal(t, int32(1), forced.Load())
			require.Zero(t, fake.Len())
			require.Equal(t, session.State{Identity: nil, Settling: false}, c.State())
			require.Equal(t, session.State{}, <-updates)
		})
	}
}

// teardownStore calls duringClear right after each Clear, while the session still
// reports the identity being torn down.
type teardownStore struct {
	*credentials.Store
	duringClear func()
}

func (s *teardownStore) Clear() {
	s.Store.Clear()
	if s.duringClear != nil {
		s.duringClear()
	}
}

func TestIdentityUpdateDuringTeardownIsRejected(t *testing.T) {
	tests := []struct {
		name     string
		teardown func(ctx context.Context, s *session.Session)
	}{
		{
			name: "forced logout",
			teardown: func(ctx context.Context, s *session.Session) {
				_, err := s.Do(ctx, apiclient.Request{Path: "/degrees", RequiresAuth: true})
				require.ErrorIs(t, err, refresh.ErrSessionExpired)
			},
		},
		{
			name: "logout",
			teardown: func(ctx context.Context, s *session.Session) {
				s.Logout(ctx)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newScripted(t, map[string]http.HandlerFunc{
				pathLogin: loginA1,
				pathRefresh: func(w http.ResponseWriter, r *http.Request) {
					respond(w, http.StatusUnauthorized, map[string]any{"success": false, "error": "refresh token revoked"})
				},
				pathDegrees: degreesFor("never"),
			})

			store := &teardownStore{Store: credentials.NewStore(storefake.NewFakeBackend())}
			s := session.New(apiclient.NewExecutor(backend.URL+"/api", store), store)

			ctx := context.Background()
			_, err := s.Login(ctx, "admin", "adminpw")
			require.NoError(t, err)

			var (
				ran       bool
				updateErr error
			)
			store.duringClear = func() {
				ran = true
				updateErr = s.UpdateIdentity(credentials.Identity{Username: "admin", Role: credentials.RoleAdmin, MembershipProviderID: "UniversityMSP"})
			}
			tt.teardown(ctx, s)

			require.True(t, ran)
			require.ErrorIs(t, updateErr, session.ErrNotAuthenticated)
			pair, id := store.Snapshot()
			require.Nil(t, pair)
			require.Nil(t, id)
			require.False(t, s.IsAuthenticated())
		})
	}
}

func TestPublicExpiryIsNotRefreshed(t *testing.T) {
	backend := newScripted(t, map[string]http.HandlerFunc{
		pathLogin:   loginA1,
		pathDegrees: degreesFor("never"),
	})
	c := newClient(t, backend.URL+"/api")
	_, err := c.Login(context.Background(), "admin", "adminpw")
	require.NoError(t, err)

	_, err = c.Do(context.Background(), apiclient.Request{Path: "/degrees"})
	require.ErrorIs(t, err, apiclient.ErrAuth)
	require.Zero(t, backend.Calls(pathRefresh))
	require.True(t, c.IsAuthenticated())
}

func TestOtherErrorsPropagateUnchanged(t *testing.T) {
	backend := newScripted(t, map[string]http.HandlerFunc{
		pathLogin: loginA1,
		pathDegrees: func(w http.ResponseWriter, r *http.Request) {
			respond(w, http.StatusUnprocessableEntity, map[string]any{"error": "degreeId is required", "code": "VALIDATION_FAILED"})
		},
	})
	c := newClient(t, backend.URL+"/api")
	_, err := c.Login(context.Background(), "admin", "adminpw")
	require.NoError(t, err)

	_, err = c.Do(context.Background(), apiclient.Request{Method: http.MethodPost, Path: "/degrees", RequiresAuth: true})
	var apiErr *apiclient.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, apiclient.KindClient, apiErr.Kind)
	require.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
	require.Equal(t, "degreeId is required", apiErr.Message)
	require.Equal(t, "VALIDATION_FAILED", apiErr.Code)
	require.Zero(t, backend.Calls(pathRefresh))
}

func TestSingleFlightAgainstBackend(t *testing.T) {
	b := servertest.Start(t, servertest.Config{AccessTokenExpiry: -time.Minute})
	c := newClient(t, b.BaseURL())

	_, err := c.Login(context.Background(), servertest.AdminUsername, servertest.AdminPassword)
	require.NoError(t, err)
	b.SetAccessTokenExpiry(15 * time.Minute)

	const callers = 12
	var wg sync.WaitGroup
	profiles := make(chan *authmodel.Profile, callers)
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := c.Profile(context.Background())
			if err != nil {
				errs <- err
				return
			}
			profiles <- p
		}()
	}
	wg.Wait()
	close(errs)
	close(profiles)

	for err := range errs {
		require.NoError(t, err)
	}
	require.Len(t, profiles, callers)
	for p := range profiles {
		require.Equal(t, "admin", p.Username)
	}
	require.Equal(t, int64(1), b.RefreshCalls())
	requirePaired(t, c.store)
}

func TestBoundedRetry(t *testing.T) {
	// Every issued access token is already expired, so the replayed call expires too.
	b := servertest.Start(t, servertest.Config{AccessTokenExpiry: -time.Minute})
	c := newClient(t, b.BaseURL())

	_, err := c.Login(context.Background(), servertest.AdminUsername, servertest.AdminPassword)
	require.NoError(t, err)

	_, err = c.Profile(context.Background())
	require.Error(t, err)
	require.Equal(t, apiclient.KindAuth, apiclient.KindOf(err))

	var apiErr *apiclient.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, authmodel.CodeTokenExpired, apiErr.Code)
	require.Equal(t, int64(1), b.RefreshCalls())
	require.True(t, c.IsAuthenticated(), "a second expiry is an error for the call, not a logout")
}

func TestMaxRefreshRetries(t *testing.T) {
	b := servertest.Start(t, servertest.Config{AccessTokenExpiry: -time.Minute})

	t.Run("zero", func(t *testing.T) {
		c := newClient(t, b.BaseURL(), session.WithMaxRefreshRetries(0))
		_, err := c.Login(context.Background(), servertest.AdminUsername, servertest.AdminPassword)
		require.NoError(t, err)

		before := b.RefreshCalls()
		_, err = c.Profile(context.Background())
		require.ErrorIs(t, err, apiclient.ErrAuth)
		require.Equal(t, before, b.RefreshCalls())
	})

	t.Run("three", func(t *testing.T) {
		c := newClient(t, b.BaseURL(), session.WithMaxRefreshRetries(3))
		_, err := c.Login(context.Background(), servertest.AdminUsername, servertest.AdminPassword)
		require.NoError(t, err)

		before := b.RefreshCalls()
		_, err = c.Profile(context.Background())
		require.ErrorIs(t, err, apiclient.ErrAuth)
		require.Equal(t, before+3, b.RefreshCalls())
	})
}

func TestIdentityAndCredentialsStayPaired(t *testing.T) {
	b := servertest.Start(t, servertest.Config{AccessTokenExpiry: -time.Minute})
	c := newClient(t, b.BaseURL())

	stop := make(chan struct{})
	var violations atomic.Int32
	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		for {
			select {
			case <-stop:
				return
			default:
			}
			pair, id := c.store.Snapshot()
			if (pair == nil) != (id == nil) {
				violations.Add(1)
			}
		}
	}()

	ctx := context.Background()
	for round := 0; round < 3; round++ {
		_, err := c.Login(ctx, servertest.AdminUsername, servertest.AdminPassword)
		require.NoError(t, err)

		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = c.Profile(ctx)
			}()
		}
		b.RevokeRefreshTokens(servertest.AdminUsername)
		wg.Wait()
		c.Logout(ctx)
	}

	close(stop)
	<-watcherDone
	require.Zero(t, violations.Load())
	requirePaired(t, c.store)
}

func TestLogoutAlwaysSucceeds(t *testing.T) {
	b := servertest.Start(t, servertest.Config{})
	fake := storefake.NewFakeBackend()
	c := newClientWithBackend(t, b.BaseURL(), fake)

	_, err := c.Login(context.Background(), servertest.AdminUsername, servertest.AdminPassword)
	require.NoError(t, err)

	b.HTTP.Close()
	c.Logout(context.Background())

	require.Zero(t, fake.Len())
	require.Equal(t, session.State{}, c.State())

	// Already logged out: no call is made and nothing changes.
	c.Logout(context.Background())
	require.Zero(t, fake.Len())
}

func TestLogoutRevokesOnServer(t *testing.T) {
	backend := newScripted(t, map[string]http.HandlerFunc{
		pathLogin: loginA1,
		pathLogout: func(w http.ResponseWriter, r *http.Request) {
			respond(w, http.StatusOK, map[string]any{"success": true})
		},
	})
	c := newClient(t, backend.URL+"/api")
	_, err := c.Login(context.Background(), "admin", "adminpw")
	require.NoError(t, err)

	c.Logout(context.Background())
	require.Equal(t, []string{"Bearer A1"}, backend.Bearers(pathLogout))
	require.False(t, c.IsAuthenticated())
}

func TestInitializationRestoresWithoutNetwork(t *testing.T) {
	folder := t.TempDir()
	backend := newScripted(t, map[string]http.HandlerFunc{pathLogin: loginA1})

	open := func() *client {
		fs, err := filestore.New(folder, zerolog.Nop())
		require.NoError(t, err)
		return newClientWithBackend(t, backend.URL+"/api", fs)
	}

	first := open()
	_, err := first.Login(context.Background(), "admin", "adminpw")
	require.NoError(t, err)
	calls := backend.Total()

	second := open()
	third := open()
	require.Equal(t, calls, backend.Total(), "restoring makes no calls")

	require.Equal(t, first.State(), second.State())
	require.Equal(t, second.State(), third.State())
	require.False(t, second.State().Settling)
	require.Equal(t, "admin", second.State().Identity.Username)
}

func TestInitializationClearsOrphans(t *testing.T) {
	fake := storefake.NewFakeBackend()
	fake.Set(credentials.KeyAccessToken, "A1")
	fake.Set(credentials.KeyRefreshToken, "R1")

	c := newClientWithBackend(t, "http://127.0.0.1:0/api", fake)
	require.Equal(t, session.State{}, c.State())
	require.Zero(t, fake.Len())
}

func TestRegisterAndEnroll(t *testing.T) {
	b := servertest.Start(t, servertest.Config{})
	c := newClient(t, b.BaseURL())
	ctx := context.Background()

	reg, err := c.Register(ctx,
		session.AdminCredentials{Username: servertest.AdminUsername, Password: servertest.AdminPassword},
		authmodel.NewUser{Username: "sam", Password: "sampw1", Role: credentials.RoleStudent, StudentID: "S-7"},
	)
	require.NoError(t, err)
	require.True(t, reg.Success)
	require.False(t, c.IsAuthenticated(), "registration does not log anyone in")

	_, err = c.Enroll(ctx, "sam", "wrong-secret")
	require.ErrorIs(t, err, apiclient.ErrAuth)

	enrolled, err := c.Enroll(ctx, "sam", reg.EnrollmentSecret)
	require.NoError(t, err)
	require.True(t, enrolled.Success)

	_, err = c.Login(ctx, "sam", "sampw1")
	require.NoError(t, err)

	profile, err := c.Profile(ctx)
	require.NoError(t, err)
	require.Equal(t, "S-7", profile.StudentID)
	require.True(t, profile.Enrolled)

	require.NoError(t, c.Require(credentials.RoleStudent))
	require.ErrorIs(t, c.Require(credentials.RoleAdmin), session.ErrForbidden)

	health, err := c.Health(ctx)
	require.NoError(t, err)
	require.Equal(t, "ok", health.Status)
}

func TestSubscribe(t *testing.T) {
	backend := newScripted(t, map[string]http.HandlerFunc{pathLogin: loginA1})
	c := newClient(t, backend.URL+"/api")

	updates, unsubscribe := c.Subscribe()
	require.Equal(t, session.State{}, <-updates)

	_, err := c.Login(context.Background(), "admin", "adminpw")
	require.NoError(t, err)
	st := <-updates
	require.Equal(t, "admin", st.Identity.Username)

	require.NoError(t, c.UpdateIdentity(credentials.Identity{Username: "admin", Role: credentials.RoleAdmin, MembershipProviderID: "UniversityMSP"}))
	st = <-updates
	require.Equal(t, "UniversityMSP", st.Identity.MembershipProviderID)
	stored, _ := c.store.Identity()
	require.Equal(t, "UniversityMSP", stored.MembershipProviderID)

	c.Logout(context.Background())
	require.Nil(t, (<-updates).Identity)

	unsubscribe()
	_, open := <-updates
	require.False(t, open)
	unsubscribe()

	require.ErrorIs(t, c.UpdateIdentity(credentials.Identity{Username: "x"}), session.ErrNotAuthenticated)
	require.ErrorIs(t, c.Require(), session.ErrNotAuthenticated)
}

func TestTokenSource(t *testing.T) {
	backend := newScripted(t, map[string]http.HandlerFunc{pathLogin: loginA1})
	c := newClient(t, backend.URL+"/api")

	_, err := c.TokenSource().Token()
	require.ErrorIs(t, err, session.ErrNotAuthenticated)

	_, err = c.Login(context.Background(), "admin", "adminpw")
	require.NoError(t, err)

	tok, err := c.TokenSource().Token()
	require.NoError(t, err)
	require.Equal(t, "A1", tok.AccessToken)
	require.Equal(t, "Bearer", tok.Type())
}

func TestCallerCancellation(t *testing.T) {
	release := make(chan struct{})
	backend := newScripted(t, map[string]http.HandlerFunc{
		pathLogin: loginA1,
		pathRefresh: func(w http.ResponseWriter, r *http.Request) {
			<-release
			respond(w, http.StatusOK, map[string]any{"success": true, "accessToken": "A2", "refreshToken": "R2"})
		},
		pathDegrees: degreesFor("A2"),
	})
	c := newClient(t, backend.URL+"/api")
	_, err := c.Login(context.Background(), "admin", "adminpw")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Do(ctx, apiclient.Request{Path: "/degrees", RequiresAuth: true})
		done <- err
	}()

	require.Eventually(t, func() bool { return backend.Calls(pathRefresh) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	close(release)
	require.Eventually(t, func() bool {
		pair, _ := c.store.Tokens()
		return pair.AccessToken == "A2"
	}, time.Second, 5*time.Millisecond, "the refresh completes for the session")
}
