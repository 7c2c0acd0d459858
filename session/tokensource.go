package session

import (
	"golang.org/x/oauth2"
)

type tokenSource struct {
	store Store
}

// TokenSource exposes the session's access token to other HTTP clients, for example
// through oauth2.NewClient. It never refreshes; expiry is handled by Do.
func (s *Session) TokenSource() oauth2.TokenSource {
	return tokenSource{store: s.store}
}

func (t tokenSource) Token() (*oauth2.Token, error) {
	pair, ok := t.store.Tokens()
	if !ok {
		return nil, ErrNotAuthenticated
	}
	return pair.OAuth2Token(), nil
}
