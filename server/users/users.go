// Package users holds the stub backend's accounts.
package users

import (
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/jrsteele09/campus-auth-client/credentials"
)

type User struct {
	Username             string           `json:"username"`
	PasswordHash         string           `json:"-"` // never serialize
	Role                 credentials.Role `json:"role"`
	MembershipProviderID string           `json:"mspId,omitempty"`
	StudentID            *string          `json:"studentId,omitempty"`
	DateJoined           time.Time        `json:"date_joined,omitempty"`
	LastLogin            time.Time        `json:"last_login,omitempty"`

	// Enrolled users hold ledger credentials and may log in. Registration hands out
	// EnrollmentSecret; /auth/enroll exchanges it for enrollment.
	Enrolled         bool   `json:"enrolled"`
	EnrollmentSecret string `json:"-"`
}

// Identity is the record the client caches after login.
func (u *User) Identity() credentials.Identity {
	return credentials.Identity{
		Username:             u.Username,
		Role:                 u.Role,
		MembershipProviderID: u.MembershipProviderID,
		StudentID:            u.StudentID,
	}
}

// MembershipProviderFor returns the ledger organisation a role enrolls with.
func MembershipProviderFor(role credentials.Role) string {
	switch role {
	case credentials.RoleAdmin, credentials.RoleStudent:
		return "UniversityMSP"
	case credentials.RoleReviewer:
		return "ReviewerMSP"
	default:
		return "ClientMSP"
	}
}

// ValidatePassword checks the minimum the backend accepts for a new account.
func ValidatePassword(password string) error {
	if len(password) < 6 {
		return fmt.Errorf("password must be at least 6 characters long")
	}
	return nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

func (u *User) CheckPassword(password string) bool {
	return CheckPasswordHash(password, u.PasswordHash)
}
