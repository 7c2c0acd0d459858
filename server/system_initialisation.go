package server

import (
	"fmt"

	"github.com/jrsteele09/campus-auth-client/credentials"
	"github.com/jrsteele09/campus-auth-client/server/users"
)

// InitialiseSystem creates the configured admin account if it does not exist yet.
func (s *Server) InitialiseSystem() error {
	username := s.config.GetAdminUsername()
	if _, err := s.repos.Users.Get(username); err == nil {
		return nil
	}

	hash, err := users.HashPassword(s.config.GetAdminPassword())
	if err != nil {
		return fmt.Errorf("[Server InitialiseSystem] failed to hash admin password: %w", err)
	}

	admin := &users.User{
		Username:             username,
		PasswordHash:         hash,
		Role:                 credentials.RoleAdmin,
		MembershipProviderID: users.MembershipProviderFor(credentials.RoleAdmin),
		DateJoined:           nowTimeFunc(),
		Enrolled:             true,
	}
	if err := s.repos.Users.Upsert(admin); err != nil {
		return fmt.Errorf("[Server InitialiseSystem] failed to store admin user: %w", err)
	}

	s.log.Info().Str("username", username).Msg("admin account created")
	return nil
}
