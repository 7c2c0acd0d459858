// Package authmodel holds the request and response bodies of the campus backend's
// /auth endpoints. The client and the stub server share these definitions.
package authmodel

import "github.com/jrsteele09/campus-auth-client/credentials"

// Endpoint paths, relative to the API base URL.
const (
	PathLogin    = "/auth/login"
	PathRefresh  = "/auth/refresh"
	PathLogout   = "/auth/logout"
	PathEnroll   = "/auth/enroll"
	PathRegister = "/auth/register"
	PathProfile  = "/auth/profile"
	PathHealth   = "/health"
)

// CodeTokenExpired is the only error code that makes a 401 eligible for refresh.
// Any other 401 or 403 is terminal for the call.
const CodeTokenExpired = "AUTH_TOKEN_EXPIRED"

// Other codes the stub server emits. Clients treat them as opaque.
const (
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeTokenInvalid       = "AUTH_TOKEN_INVALID"
	CodeTokenMissing       = "AUTH_TOKEN_MISSING"
	CodeRefreshInvalid     = "AUTH_REFRESH_INVALID"
	CodeForbidden          = "AUTH_FORBIDDEN"
	CodeValidation         = "VALIDATION_FAILED"
	CodeConflict           = "CONFLICT"
	CodeNotFound           = "NOT_FOUND"
)

// ErrorResponse is the error body consumed by the response classifier.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is returned by a successful login.
type LoginResponse struct {
	Success bool `json:"success"`

	// AccessToken is presented as "Authorization: Bearer <accessToken>" on every
	// authenticated call. Short lived; opaque to the client.
	AccessToken string `json:"accessToken"`

	// RefreshToken is presented only to /auth/refresh, in the request body.
	RefreshToken string `json:"refreshToken"`

	// User is cached by the client as the current identity.
	User credentials.Identity `json:"user"`

	Error string `json:"error,omitempty"`
}

// Pair returns the issued credential pair.
func (r LoginResponse) Pair() credentials.Pair {
	return credentials.Pair{AccessToken: r.AccessToken, RefreshToken: r.RefreshToken}
}

// RefreshRequest is the body of POST /auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// RefreshResponse carries the rotated pair. On failure Success is false and Error is set.
type RefreshResponse struct {
	Success      bool   `json:"success"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	Error        string `json:"error,omitempty"`
}

func (r RefreshResponse) Pair() credentials.Pair {
	return credentials.Pair{AccessToken: r.AccessToken, RefreshToken: r.RefreshToken}
}

// EnrollRequest is the body of POST /auth/enroll.
type EnrollRequest struct {
	Username         string `json:"username"`
	EnrollmentSecret string `json:"enrollmentSecret"`
}

type EnrollResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// NewUser describes the account an admin registers.
type NewUser struct {
	Username  string           `json:"username"`
	Password  string           `json:"password"`
	Role      credentials.Role `json:"role"`
	StudentID string           `json:"studentId,omitempty"`
}

// RegisterRequest is the body of POST /auth/register. The admin's credentials travel in
// the body; the call carries no bearer token.
type RegisterRequest struct {
	AdminUsername string  `json:"adminUsername"`
	AdminPassword string  `json:"adminPassword"`
	UserData      NewUser `json:"userData"`
}

// RegisterResponse reports the enrollment secret. Enrolled is true when the backend
// enrolled the new user itself; otherwise the secret must be passed to /auth/enroll.
type RegisterResponse struct {
	Success          bool   `json:"success"`
	EnrollmentSecret string `json:"enrollmentSecret"`
	Enrolled         bool   `json:"enrolled"`
	Message          string `json:"message,omitempty"`
}

// Profile is the server's view of the logged in user.
type Profile struct {
	Username             string           `json:"username"`
	Role                 credentials.Role `json:"role"`
	MembershipProviderID string           `json:"mspId,omitempty"`
	StudentID            string           `json:"studentId,omitempty"`
	Enrolled             bool             `json:"enrolled"`
}

type ProfileResponse struct {
	Success bool    `json:"success"`
	Profile Profile `json:"profile"`
}

type HealthResponse struct {
	Success bool   `json:"success"`
	Status  string `json:"status"`
}
