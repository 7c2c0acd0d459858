package credentials

import (
	"golang.org/x/oauth2"
)

// Keys under which a Backend persists the session. They match the browser client's
// local storage keys so stores can be shared with it.
const (
	KeyAccessToken  = "token"
	KeyRefreshToken = "refreshToken"
	KeyIdentity     = "user"
)

const bearerTokenType = "Bearer"

// Pair is the opaque credential pair issued at login and rotated on refresh.
// AccessToken is short lived and presented on every authenticated call.
// RefreshToken is presented only to the refresh endpoint.
type Pair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// OAuth2Token converts the pair into a bearer token. No expiry is set: the tokens are
// opaque to the client and expiry is detected from server responses.
func (p Pair) OAuth2Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		TokenType:    bearerTokenType,
	}
}

// PairFromOAuth2 is the inverse of Pair.OAuth2Token.
func PairFromOAuth2(t *oauth2.Token) Pair {
	if t == nil {
		return Pair{}
	}
	return Pair{AccessToken: t.AccessToken, RefreshToken: t.RefreshToken}
}

// Backend is durable key/value persistence for a single session.
// Implementations are synchronous and total: I/O failures are logged by the
// implementation and a failed read reports the key as absent.
type Backend interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Delete(key string)
}

// Op is one write in a batch. Delete removes Key and ignores Value.
type Op struct {
	Key    string
	Value  string
	Delete bool
}

// BatchBackend is implemented by backends that can apply several writes as one
// atomic step, so other readers of a shared backend never see half a session.
// Store uses it when available and falls back to single writes otherwise.
type BatchBackend interface {
	Backend
	Apply(ops []Op)
}
