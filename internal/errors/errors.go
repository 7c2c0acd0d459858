package errors

import (
	"errors"
	"fmt"
)

// Common error types for the campus auth client
var (
	// Session errors
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrForbidden        = errors.New("forbidden for role")
	ErrSessionExpired   = errors.New("session expired")

	// Refresh errors
	ErrNoRefreshToken      = errors.New("no refresh token stored")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrRefreshRejected     = errors.New("refresh rejected")

	// Stub backend errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
	ErrNotEnrolled        = errors.New("user not enrolled")
	ErrInvalidSecret      = errors.New("invalid enrollment secret")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")

	// General errors
	ErrNotFound = errors.New("not found")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New is errors.New, re-exported so callers need a single errors import.
func New(text string) error {
	return errors.New(text)
}
