package session_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/campus-auth-client/apiclient"
	"github.com/jrsteele09/campus-auth-client/credentials"
	"github.com/jrsteele09/campus-auth-client/credentials/storefake"
	"github.com/jrsteele09/campus-auth-client/session"
)

type client struct {
	*session.Session
	store   *credentials.Store
	backend credentials.Backend
}

func newClient(t *testing.T, baseURL string, opts ...session.Option) *client {
	t.Helper()
	return newClientWithBackend(t, baseURL, storefake.NewFakeBackend(), opts...)
}

func newClientWithBackend(t *testing.T, baseURL string, backend credentials.Backend, opts ...session.Option) *client {
	t.Helper()
	store := credentials.NewStore(backend)
	exec := apiclient.NewExecutor(baseURL, store)
	return &client{
		Session: session.New(exec, store, opts...),
		store:   store,
		backend: backend,
	}
}

// scripted is a backend whose routes are defined by the test. It records every call.
type scripted struct {
	*httptest.Server

	lock    sync.Mutex
	calls   map[string]int
	bearers map[string][]string
}

func newScripted(t *testing.T, routes map[string]http.HandlerFunc) *scripted {
	t.Helper()
	s := &scripted{
		calls:   make(map[string]int),
		bearers: make(map[string][]string),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.lock.Lock()
		s.calls[r.URL.Path]++
		s.bearers[r.URL.Path] = append(s.bearers[r.URL.Path], r.Header.Get("Authorization"))
		s.lock.Unlock()

		h, ok := routes[r.URL.Path]
		if !ok {
			respond(w, http.StatusNotFound, map[string]any{"success": false, "error": "not found"})
			return
		}
		h(w, r)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *scripted) Calls(path string) int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.calls[path]
}

func (s *scripted) Total() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

func (s *scripted) Bearers(path string) []string {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]string(nil), s.bearers[path]...)
}

func respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func requirePaired(t *testing.T, store *credentials.Store) {
	t.Helper()
	pair, id := store.Snapshot()
	require.Equal(t, pair == nil, id == nil, "pair %v identity %v", pair, id)
}
