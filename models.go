package authclient

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// UserRole is the user's role as issued by the backend
type UserRole = string

const (
	// RoleSuperAdmin has unrestricted access across organizations
	RoleSuperAdmin UserRole = "SUPER_ADMIN"
	// RoleAdmin administers a single organization
	RoleAdmin UserRole = "ADMIN"
	// RoleManager owns policies and controls inside an organization
	RoleManager UserRole = "MANAGER"
	// RoleAuditor has read access to compliance artifacts
	RoleAuditor UserRole = "AUDITOR"
	// RoleMember is the default role for regular users
	RoleMember UserRole = "MEMBER"
)

// GuestDisplayName is what DisplayName falls back to without a user.
const GuestDisplayName = "Guest"

// User is the authenticated identity as returned by the profile endpoint.
type User struct {
	ID               uuid.UUID  `json:"id,omitempty"`
	Email            string     `json:"email,omitempty"`
	FirstName        string     `json:"first_name,omitempty"`
	LastName         string     `json:"last_name,omitempty"`
	Organization     string     `json:"organization,omitempty"`
	Role             UserRole   `json:"role,omitempty"`
	EmailVerified    bool       `json:"is_email_verified,omitempty"`
	TwoFactorEnabled bool       `json:"is_2fa_enabled,omitempty"`
	Phone            string     `json:"phone_number,omitempty"`
	CreatedAt        *time.Time `json:"created_at,omitempty"`
	UpdatedAt        *time.Time `json:"updated_at,omitempty"`
}

// DisplayName resolves a human friendly name. Precedence: first+last name,
// first only, last only, email local part.
func (u *User) DisplayName() string {
	if u == nil {
		return GuestDisplayName
	}

	first := strings.TrimSpace(u.FirstName)
	last := strings.TrimSpace(u.LastName)

	switch {
	case first != "" && last != "":
		return first + " " + last
	case first != "":
		return first
	case last != "":
		return last
	}

	if at := strings.Index(u.Email, "@"); at > 0 {
		return u.Email[:at]
	}
	if u.Email != "" {
		return u.Email
	}

	return GuestDisplayName
}

// Clone returns a copy so snapshots never alias store state.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	cp := *u
	return &cp
}

// AuthTokens is the credential pair issued on login. The refresh token is
// only ever sent to the refresh endpoint.
type AuthTokens struct {
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

func (t *AuthTokens) Clone() *AuthTokens {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

// IsValid checks if the role is one of the predefined valid roles
func IsValidRole(r UserRole) bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleManager, RoleAuditor, RoleMember:
		return true
	default:
		return false
	}
}

// IsAdminRole reports whether the role grants administrative access.
func IsAdminRole(r UserRole) bool {
	return r == RoleSuperAdmin || r == RoleAdmin
}

// RoleIn is an exact membership test against the single role field.
func RoleIn(r UserRole, roles ...UserRole) bool {
	for _, candidate := range roles {
		if r == candidate {
			return true
		}
	}
	return false
}

// GetAllRoles returns all predefined roles
func GetAllRoles() []UserRole {
	return []UserRole{
		RoleSuperAdmin,
		RoleAdmin,
		RoleManager,
		RoleAuditor,
		RoleMember,
	}
}

// ParseRole safely parses a string into a UserRole type
func ParseRole(roleStr string) (UserRole, bool) {
	role := UserRole(roleStr)
	return role, IsValidRole(role)
}
