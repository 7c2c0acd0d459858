// Package tokens issues and checks the stub backend's credentials: signed JWT access
// tokens and opaque rotating refresh tokens.
package tokens

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/jrsteele09/campus-auth-client/credentials"
	"github.com/jrsteele09/campus-auth-client/internal/errors"
	"github.com/jrsteele09/campus-auth-client/server/users"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

const issuer = "campus-stub"

// AccessClaims are carried by every access token.
type AccessClaims struct {
	Role      credentials.Role `json:"role"`
	MSPID     string           `json:"mspId,omitempty"`
	StudentID string           `json:"studentId,omitempty"`
	jwt.RegisteredClaims
}

// Creator handles access token creation and validation
type Creator struct {
	signer Signer

	lock   sync.RWMutex
	expiry time.Duration
}

func NewCreator(signer Signer, expiry time.Duration) *Creator {
	return &Creator{
		signer: signer,
		expiry: expiry,
	}
}

// SetExpiry changes the lifetime of tokens created from now on.
func (c *Creator) SetExpiry(d time.Duration) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.expiry = d
}

// CreateAccessToken signs an access token for user.
func (c *Creator) CreateAccessToken(user *users.User) (string, error) {
	c.lock.RLock()
	expiry := c.expiry
	c.lock.RUnlock()

	now := NowTimeFunc()
	claims := AccessClaims{
		Role:  user.Role,
		MSPID: user.MembershipProviderID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   user.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			ID:        uuid.New().String(), // unique even when issued in the same second
		},
	}
	if user.StudentID != nil {
		claims.StudentID = *user.StudentID
	}

	signed, err := c.signer.Sign(claims)
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT token: %w", err)
	}
	return signed, nil
}

// Validate parses an access token. Expired tokens return errors.ErrTokenExpired, any
// other problem errors.ErrInvalidToken.
func (c *Creator) Validate(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	_, err := jwt.ParseWithClaims(token, claims, c.signer.GetVerificationKey,
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(NowTimeFunc),
		jwt.WithValidMethods([]string{c.signer.GetSigningMethod().Alg()}),
	)
	switch {
	case err == nil:
		return claims, nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, errors.Wrapf(errors.ErrTokenExpired, "access token for %q", claims.Subject)
	default:
		return nil, fmt.Errorf("%w: %w", errors.ErrInvalidToken, err)
	}
}
