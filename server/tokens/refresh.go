package tokens

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jrsteele09/campus-auth-client/internal/errors"
)

// RefreshManager handles refresh token creation, validation, and rotation
type RefreshManager struct {
	repo   Repo
	expiry time.Duration

	// lock makes rotation of one token atomic.
	lock sync.Mutex
}

func NewRefreshManager(repo Repo, expiry time.Duration) *RefreshManager {
	return &RefreshManager{
		repo:   repo,
		expiry: expiry,
	}
}

// Create issues a refresh token for username, revoking the previous one.
func (m *RefreshManager) Create(username string) (string, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.create(username)
}

// Rotate exchanges a live refresh token for a new one and returns the owner.
// A token is accepted once.
func (m *RefreshManager) Rotate(token string) (username, next string, err error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	rt, err := m.repo.Get(token)
	if err != nil {
		return "", "", errors.ErrInvalidRefreshToken
	}
	if NowTimeFunc().Sub(rt.Iat) > m.expiry {
		_ = m.repo.Delete(token)
		return "", "", errors.Wrapf(errors.ErrTokenExpired, "refresh token for %q", rt.Username)
	}

	next, err = m.create(rt.Username)
	if err != nil {
		return "", "", err
	}
	return rt.Username, next, nil
}

// Revoke removes the live refresh token of username, if any.
func (m *RefreshManager) Revoke(username string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if existing, err := m.repo.GetByUsername(username); err == nil && existing != nil {
		_ = m.repo.Delete(existing.Token)
	}
}

func (m *RefreshManager) create(username string) (string, error) {
	if existing, err := m.repo.GetByUsername(username); err == nil && existing != nil {
		if err := m.repo.Delete(existing.Token); err != nil {
			return "", fmt.Errorf("failed to delete existing refresh token: %w", err)
		}
	}

	token := uuid.NewString()
	if err := m.repo.Upsert(&StoredRefreshToken{
		Token:    token,
		Username: username,
		Iat:      NowTimeFunc(),
	}); err != nil {
		return "", fmt.Errorf("failed to store refresh token: %w", err)
	}
	return token, nil
}
