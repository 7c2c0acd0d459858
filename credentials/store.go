package credentials

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"
)

// Store is the credential store: typed access to the credential pair and identity
// record persisted in a Backend.
//
// Pair and identity are written and removed together by Save, Rotate and Clear, and
// Snapshot reads both under the same lock, so a reader never observes one without
// the other. The single-key setters exist for callers that manage pairing themselves.
type Store struct {
	backend Backend
	log     zerolog.Logger
	lock    sync.RWMutex
}

type StoreOption func(*Store)

func WithLogger(l zerolog.Logger) StoreOption {
	return func(s *Store) { s.log = l }
}

func NewStore(backend Backend, opts ...StoreOption) *Store {
	s := &Store{
		backend: backend,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Tokens returns the stored pair. ok is false when no access token is stored.
func (s *Store) Tokens() (Pair, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.tokens()
}

func (s *Store) SetTokens(p Pair) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.setTokens(p)
}

func (s *Store) ClearTokens() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.clearTokens()
}

// Identity returns the stored identity record. An undecodable record is reported as absent.
func (s *Store) Identity() (Identity, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.identity()
}

func (s *Store) SetIdentity(id Identity) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.setIdentity(id)
}

func (s *Store) ClearIdentity() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.apply(clearOps[2:])
}

// Save stores a freshly issued pair together with its identity.
func (s *Store) Save(p Pair, id Identity) {
	s.lock.Lock()
	defer s.lock.Unlock()
	op, ok := s.identityOp(id)
	if !ok {
		return
	}
	s.apply(append([]Op{op}, tokenOps(p)...))
}

// Rotate replaces the tokens of the current session, keeping its identity.
// It reports false and writes nothing when no session is stored.
func (s *Store) Rotate(p Pair) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	if _, ok := s.identity(); !ok {
		return false
	}
	s.apply(tokenOps(p))
	return true
}

// UpdateIdentity replaces the identity of the current session, keeping its tokens.
// It reports false and writes nothing when no credential pair is stored.
func (s *Store) UpdateIdentity(id Identity) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	if _, ok := s.tokens(); !ok {
		return false
	}
	s.setIdentity(id)
	return true
}

// Clear removes the pair and the identity.
func (s *Store) Clear() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.apply(clearOps)
}

// Snapshot reads pair and identity atomically. Both are nil or both are set unless the
// backend holds an orphaned half, which Repair removes.
func (s *Store) Snapshot() (*Pair, *Identity) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	var (
		pair *Pair
		id   *Identity
	)
	if p, ok := s.tokens(); ok {
		pair = &p
	}
	if i, ok := s.identity(); ok {
		id = &i
	}
	return pair, id
}

// Repair clears a half-written session (pair without identity or the reverse), which
// a durable backend can hold after an interrupted write. It reports whether it cleared.
func (s *Store) Repair() bool {
	s.lock.Lock()
	defer s.lock.Unlock()

	_, hasTokens := s.tokens()
	_, hasIdentity := s.identity()
	if hasTokens == hasIdentity {
		return false
	}

	s.log.Warn().
		Bool("tokens", hasTokens).
		Bool("identity", hasIdentity).
		Msg("clearing orphaned credential state")
	s.apply(clearOps)
	return true
}

func (s *Store) tokens() (Pair, bool) {
	access, ok := s.backend.Get(KeyAccessToken)
	if !ok || access == "" {
		return Pair{}, false
	}
	refresh, _ := s.backend.Get(KeyRefreshToken)
	return Pair{AccessToken: access, RefreshToken: refresh}, true
}

func (s *Store) setTokens(p Pair) {
	s.apply(tokenOps(p))
}

func (s *Store) clearTokens() {
	s.apply(clearOps[:2])
}

func (s *Store) identity() (Identity, bool) {
	raw, ok := s.backend.Get(KeyIdentity)
	if !ok || raw == "" {
		return Identity{}, false
	}
	var id Identity
	if err := json.Unmarshal([]byte(raw), &id); err != nil {
		s.log.Warn().Err(err).Msg("stored identity is not valid JSON")
		return Identity{}, false
	}
	return id, true
}

func (s *Store) setIdentity(id Identity) {
	if op, ok := s.identityOp(id); ok {
		s.apply([]Op{op})
	}
}

func (s *Store) identityOp(id Identity) (Op, bool) {
	b, err := json.Marshal(id)
	if err != nil {
		// Identity holds only strings; Marshal cannot fail for it.
		s.log.Error().Err(err).Msg("encoding identity")
		return Op{}, false
	}
	return Op{Key: KeyIdentity, Value: string(b)}, true
}

var clearOps = []Op{
	{Key: KeyAccessToken, Delete: true},
	{Key: KeyRefreshToken, Delete: true},
	{Key: KeyIdentity, Delete: true},
}

func tokenOps(p Pair) []Op {
	return []Op{
		{Key: KeyAccessToken, Value: p.AccessToken},
		{Key: KeyRefreshToken, Value: p.RefreshToken},
	}
}

// apply must be called with s.lock held.
func (s *Store) apply(ops []Op) {
	if b, ok := s.backend.(BatchBackend); ok {
		b.Apply(ops)
		return
	}
	for _, op := range ops {
		if op.Delete {
			s.backend.Delete(op.Key)
		} else {
			s.backend.Set(op.Key, op.Value)
		}
	}
}
