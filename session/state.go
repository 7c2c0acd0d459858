package session

import (
	"github.com/jrsteele09/campus-auth-client/credentials"
)

// State is the session as the rest of the application sees it. Identity is nil when
// logged out. Settling is true only before the store has been read for the first time.
type State struct {
	Identity *credentials.Identity
	Settling bool
}

func (st State) Authenticated() bool {
	return st.Identity != nil
}

func (s *Session) State() State {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.state.clone()
}

func (s *Session) IsAuthenticated() bool {
	return s.State().Authenticated()
}

// CurrentIdentity returns a copy of the logged in identity.
func (s *Session) CurrentIdentity() (credentials.Identity, bool) {
	st := s.State()
	if st.Identity == nil {
		return credentials.Identity{}, false
	}
	return *st.Identity, true
}

// UpdateIdentity replaces the cached identity of the current session, for example
// after a profile edit. It returns ErrNotAuthenticated when logged out.
func (s *Session) UpdateIdentity(id credentials.Identity) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.state.Identity == nil || !s.store.UpdateIdentity(id) {
		return ErrNotAuthenticated
	}
	s.state.Identity = &id
	s.publishLocked()
	return nil
}

// Require checks the session may use an operation limited to roles. With no roles any
// logged in identity passes.
func (s *Session) Require(roles ...credentials.Role) error {
	id, ok := s.CurrentIdentity()
	if !ok {
		return ErrNotAuthenticated
	}
	if !id.HasRole(roles...) {
		return ErrForbidden
	}
	return nil
}

// Subscribe returns a channel that receives the current state immediately and every
// later change. Slow readers only see the latest state. The returned func
// unsubscribes and closes the channel.
func (s *Session) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)

	s.lock.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = ch
	ch <- s.state.clone()
	s.lock.Unlock()

	cancel := func() {
		s.lock.Lock()
		defer s.lock.Unlock()
		if _, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(ch)
		}
	}
	return ch, cancel
}

func (s *Session) setIdentity(id *credentials.Identity) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if id != nil {
		c := *id
		id = &c
	}
	s.state.Identity = id
	s.publishLocked()
}

// publishLocked must be called with s.lock held.
func (s *Session) publishLocked() {
	for _, ch := range s.subscribers {
		st := s.state.clone()
		select {
		case <-ch:
		default:
		}
		ch <- st
	}
}

func (st State) clone() State {
	if st.Identity != nil {
		id := *st.Identity
		st.Identity = &id
	}
	return st
}
