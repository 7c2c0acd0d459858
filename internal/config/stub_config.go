package config

import "time"

// StubConfig configures the in-process stub backend served by cmd/server.
type StubConfig interface {
	GetJWTSecret() string
	GetAccessTokenExpiry() time.Duration
	GetRefreshTokenExpiry() time.Duration
	GetAdminUsername() string
	GetAdminPassword() string
}

type Stub struct{}

var _ StubConfig = Stub{}

func (Stub) GetJWTSecret() string {
	return GetEnv("JWT_SECRET", "dev-secret")
}

func (Stub) GetAccessTokenExpiry() time.Duration {
	return GetEnvDuration("ACCESS_TOKEN_TTL", 15*time.Minute)
}

func (Stub) GetRefreshTokenExpiry() time.Duration {
	return GetEnvDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour) // 7 days
}

func (Stub) GetAdminUsername() string {
	return GetEnv("ADMIN_USERNAME", "admin")
}

func (Stub) GetAdminPassword() string {
	return GetEnv("ADMIN_PASSWORD", "adminpw")
}
