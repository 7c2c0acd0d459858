package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jrsteele09/campus-auth-client/authmodel"
	"github.com/jrsteele09/campus-auth-client/credentials"
	"github.com/jrsteele09/campus-auth-client/internal/errors"
	"github.com/jrsteele09/campus-auth-client/internal/utils"
	"github.com/jrsteele09/campus-auth-client/server/tokens"
	"github.com/jrsteele09/campus-auth-client/server/users"
)

const maxBodyBytes = 1 << 20

func nowTimeFunc() time.Time {
	return tokens.NowTimeFunc()
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, authmodel.HealthResponse{Success: true, Status: "ok"})
	}
}

// LoginHandler issues a credential pair for an enrolled user.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req authmodel.LoginRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Username == "" || req.Password == "" {
			writeError(w, http.StatusBadRequest, "username and password are required", authmodel.CodeValidation)
			return
		}

		user, err := s.repos.Users.Get(req.Username)
		if err != nil || !user.CheckPassword(req.Password) {
			writeError(w, http.StatusUnauthorized, errors.ErrInvalidCredentials.Error(), authmodel.CodeInvalidCredentials)
			return
		}
		if !user.Enrolled {
			writeError(w, http.StatusForbidden, errors.ErrNotEnrolled.Error(), authmodel.CodeForbidden)
			return
		}

		accessToken, refreshToken, err := s.issue(user)
		if err != nil {
			s.log.Error().Err(err).Str("username", user.Username).Msg("issuing credentials")
			writeError(w, http.StatusInternalServerError, "could not issue credentials", "")
			return
		}

		user.LastLogin = nowTimeFunc()
		_ = s.repos.Users.Upsert(user)

		writeJSON(w, http.StatusOK, authmodel.LoginResponse{
			Success:      true,
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
			User:         user.Identity(),
		})
	}
}

// RefreshHandler rotates a refresh token. Each refresh token is accepted once.
func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.refreshCalls.Add(1)

		var req authmodel.RefreshRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.RefreshToken == "" {
			writeError(w, http.StatusBadRequest, "refresh token is required", authmodel.CodeValidation)
			return
		}

		username, nextRefresh, err := s.refresh.Rotate(req.RefreshToken)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error(), authmodel.CodeRefreshInvalid)
			return
		}

		user, err := s.repos.Users.Get(username)
		if err != nil {
			s.refresh.Revoke(username)
			writeError(w, http.StatusUnauthorized, errors.ErrUserNotFound.Error(), authmodel.CodeRefreshInvalid)
			return
		}

		accessToken, err := s.access.CreateAccessToken(user)
		if err != nil {
			s.log.Error().Err(err).Str("username", username).Msg("issuing access token")
			writeError(w, http.StatusInternalServerError, "could not issue credentials", "")
			return
		}

		writeJSON(w, http.StatusOK, authmodel.RefreshResponse{
			Success:      true,
			AccessToken:  accessToken,
			RefreshToken: nextRefresh,
		})
	}
}

// LogoutHandler revokes the caller's refresh token.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := claimsFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, errors.ErrNotAuthenticated.Error(), authmodel.CodeTokenMissing)
			return
		}
		s.refresh.Revoke(claims.Subject)
		if claims.ExpiresAt != nil {
			s.revoked.Revoke(claims.ID, claims.ExpiresAt.Time)
		}
		s.revoked.Cleanup()
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "logged out"})
	}
}

// RegisterHandler creates a user on behalf of an admin whose credentials are in the body.
func (s *Server) RegisterHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req authmodel.RegisterRequest
		if !decodeBody(w, r, &req) {
			return
		}

		admin, err := s.repos.Users.Get(req.AdminUsername)
		if err != nil || !admin.CheckPassword(req.AdminPassword) {
			writeError(w, http.StatusUnauthorized, errors.ErrInvalidCredentials.Error(), authmodel.CodeInvalidCredentials)
			return
		}
		if !admin.Identity().IsAdmin() {
			writeError(w, http.StatusForbidden, "only admins may register users", authmodel.CodeForbidden)
			return
		}

		newUser := req.UserData
		newUser.Username = strings.TrimSpace(newUser.Username)
		newUser.Role = credentials.ParseRole(string(newUser.Role))
		if msg := validateNewUser(newUser); msg != "" {
			writeError(w, http.StatusBadRequest, msg, authmodel.CodeValidation)
			return
		}
		if _, err := s.repos.Users.Get(newUser.Username); err == nil {
			writeError(w, http.StatusConflict, errors.ErrUserExists.Error(), authmodel.CodeConflict)
			return
		}

		hash, err := users.HashPassword(newUser.Password)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "could not store password", "")
			return
		}

		user := &users.User{
			Username:         newUser.Username,
			PasswordHash:     hash,
			Role:             newUser.Role,
			DateJoined:       nowTimeFunc(),
			EnrollmentSecret: uuid.NewString(),
		}
		if newUser.StudentID != "" {
			studentID := newUser.StudentID
			user.StudentID = &studentID
		}
		if s.autoEnroll {
			user.Enrolled = true
			user.MembershipProviderID = users.MembershipProviderFor(user.Role)
		}
		if err := s.repos.Users.Upsert(user); err != nil {
			writeError(w, http.StatusInternalServerError, "could not store user", "")
			return
		}

		s.log.Info().Str("username", user.Username).Str("role", string(user.Role)).Str("by", admin.Username).Msg("user registered")
		writeJSON(w, http.StatusCreated, authmodel.RegisterResponse{
			Success:          true,
			EnrollmentSecret: user.EnrollmentSecret,
			Enrolled:         user.Enrolled,
			Message:          "user registered",
		})
	}
}

// EnrollHandler exchanges an enrollment secret for enrollment.
func (s *Server) EnrollHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req authmodel.EnrollRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Username == "" || req.EnrollmentSecret == "" {
			writeError(w, http.StatusBadRequest, "username and enrollment secret are required", authmodel.CodeValidation)
			return
		}

		user, err := s.repos.Users.Get(req.Username)
		if err != nil {
			writeError(w, http.StatusNotFound, errors.ErrUserNotFound.Error(), authmodel.CodeNotFound)
			return
		}
		if user.Enrolled {
			writeError(w, http.StatusConflict, "user already enrolled", authmodel.CodeConflict)
			return
		}
		if user.EnrollmentSecret != req.EnrollmentSecret {
			writeError(w, http.StatusUnauthorized, errors.ErrInvalidSecret.Error(), authmodel.CodeInvalidCredentials)
			return
		}

		user.Enrolled = true
		user.EnrollmentSecret = ""
		user.MembershipProviderID = users.MembershipProviderFor(user.Role)
		if err := s.repos.Users.Upsert(user); err != nil {
			writeError(w, http.StatusInternalServerError, "could not store user", "")
			return
		}

		writeJSON(w, http.StatusOK, authmodel.EnrollResponse{Success: true, Message: "user enrolled"})
	}
}

func (s *Server) ProfileHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := claimsFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, errors.ErrNotAuthenticated.Error(), authmodel.CodeTokenMissing)
			return
		}

		user, err := s.repos.Users.Get(claims.Subject)
		if err != nil {
			writeError(w, http.StatusNotFound, errors.ErrUserNotFound.Error(), authmodel.CodeNotFound)
			return
		}

		profile := authmodel.Profile{
			Username:             user.Username,
			Role:                 user.Role,
			MembershipProviderID: user.MembershipProviderID,
			StudentID:            utils.Value(user.StudentID),
			Enrolled:             user.Enrolled,
		}
		writeJSON(w, http.StatusOK, authmodel.ProfileResponse{Success: true, Profile: profile})
	}
}

func (s *Server) issue(user *users.User) (accessToken, refreshToken string, err error) {
	accessToken, err = s.access.CreateAccessToken(user)
	if err != nil {
		return "", "", err
	}
	refreshToken, err = s.refresh.Create(user.Username)
	if err != nil {
		return "", "", err
	}
	return accessToken, refreshToken, nil
}

func validateNewUser(u authmodel.NewUser) string {
	switch {
	case u.Username == "":
		return "username is required"
	case !u.Role.Valid():
		return "role must be one of admin, student, reviewer, client"
	case u.Role == credentials.RoleStudent && u.StudentID == "":
		return "studentId is required for students"
	}
	if err := users.ValidatePassword(u.Password); err != nil {
		return err.Error()
	}
	return ""
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", authmodel.CodeValidation)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, authmodel.ErrorResponse{Success: false, Error: message, Code: code})
}
