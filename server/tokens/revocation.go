package tokens

import (
	"sync"
	"time"
)

// RevocationList remembers access tokens that were logged out before they expired.
// Entries are kept until the token would have expired anyway.
type RevocationList struct {
	revoked map[string]time.Time // jti to expiry
	mu      sync.RWMutex
}

func NewRevocationList() *RevocationList {
	return &RevocationList{
		revoked: make(map[string]time.Time),
	}
}

func (l *RevocationList) Revoke(jti string, exp time.Time) {
	if jti == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.revoked[jti] = exp
}

func (l *RevocationList) IsRevoked(jti string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, exists := l.revoked[jti]
	return exists
}

// Cleanup drops entries for tokens that have expired.
func (l *RevocationList) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := NowTimeFunc()
	for jti, exp := range l.revoked {
		if now.After(exp) {
			delete(l.revoked, jti)
		}
	}
}

func (l *RevocationList) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.revoked)
}
