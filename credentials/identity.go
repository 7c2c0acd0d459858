package credentials

import (
	"encoding/json"
	"strings"
)

// Role is the organizational unit that governs which operations an identity may invoke.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleStudent  Role = "student"
	RoleReviewer Role = "reviewer"
	RoleClient   Role = "client"
)

// ParseRole normalises a role string. Unknown roles are returned as-is so newer backend
// roles survive a round trip through the store.
func ParseRole(s string) Role {
	return Role(strings.ToLower(strings.TrimSpace(s)))
}

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleStudent, RoleReviewer, RoleClient:
		return true
	}
	return false
}

// Identity is the cached record of the logged in user. It is stored alongside the
// credential pair and shares its lifetime.
type Identity struct {
	Username             string  `json:"username"`
	Role                 Role    `json:"organizationalRole"`
	MembershipProviderID string  `json:"membershipProviderId,omitempty"`
	StudentID            *string `json:"studentId,omitempty"`
}

// UnmarshalJSON accepts the legacy "ou" and "mspId" keys older backends send in place of
// organizationalRole and membershipProviderId.
func (i *Identity) UnmarshalJSON(b []byte) error {
	var raw struct {
		Username             string  `json:"username"`
		Role                 string  `json:"organizationalRole"`
		OU                   string  `json:"ou"`
		MembershipProviderID string  `json:"membershipProviderId"`
		MSPID                string  `json:"mspId"`
		StudentID            *string `json:"studentId"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	role := raw.Role
	if role == "" {
		role = raw.OU
	}
	msp := raw.MembershipProviderID
	if msp == "" {
		msp = raw.MSPID
	}

	*i = Identity{
		Username:             raw.Username,
		Role:                 ParseRole(role),
		MembershipProviderID: msp,
		StudentID:            raw.StudentID,
	}
	return nil
}

// HasRole reports whether the identity holds any of roles. No roles means any role.
func (i Identity) HasRole(roles ...Role) bool {
	if len(roles) == 0 {
		return true
	}
	for _, r := range roles {
		if i.Role == r {
			return true
		}
	}
	return false
}

func (i Identity) IsAdmin() bool    { return i.Role == RoleAdmin }
func (i Identity) IsStudent() bool  { return i.Role == RoleStudent }
func (i Identity) IsReviewer() bool { return i.Role == RoleReviewer }
