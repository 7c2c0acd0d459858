package tokens

import (
	"time"
)

// StoredRefreshToken is the server side record of an issued refresh token. The client
// only ever sees Token.
type StoredRefreshToken struct {
	Token    string
	Username string
	Iat      time.Time
}

// Repo stores refresh token metadata keyed by the token string. At most one token
// per user is live.
type Repo interface {
	Upsert(refreshToken *StoredRefreshToken) error
	Delete(token string) error
	Get(token string) (*StoredRefreshToken, error)
	GetByUsername(username string) (*StoredRefreshToken, error)
}
