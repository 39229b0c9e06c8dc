// internal/user/domain.go
package user

import (
	"net/mail"
	"time"

	"github.com/google/uuid"

	"stocktrack/internal/auth"
	"stocktrack/internal/errs"
)

// User statuses.
const (
	StatusActive    = "active"
	StatusInactive  = "inactive"
	StatusSuspended = "suspended"
)

// User is an account in the directory. PasswordHash and Salt never
// leave this package.
type User struct {
	ID         uuid.UUID `json:"id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	Role       string    `json:"role"`
	Status     string    `json:"status"`
	Department string    `json:"department,omitempty"`
	Phone      string    `json:"phone,omitempty"`

	// Permissions start as the role defaults and may be edited per
	// account by an administrator afterwards.
	Permissions auth.Capabilities `json:"permissions"`

	PasswordHash string `json:"-"`
	Salt         string `json:"-"`

	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// DefaultCapabilities returns the permission set a role grants before
// any per-account edits.
func DefaultCapabilities(role string) auth.Capabilities {
	switch role {
	case auth.RoleAdmin:
		return auth.Capabilities{
			CanCheckout:      true,
			CanManageItems:   true,
			CanManageUsers:   true,
			CanViewAnalytics: true,
		}
	case auth.RoleManager:
		return auth.Capabilities{
			CanCheckout:      true,
			CanManageItems:   true,
			CanViewAnalytics: true,
		}
	default:
		return auth.Capabilities{CanCheckout: true}
	}
}

// Identity builds the authenticated identity issued at login. The
// stored permission flags travel in the token claims and are checked
// once per request; engines never re-derive them.
func (u *User) Identity() auth.Identity {
	return auth.Identity{UserID: u.ID, Role: u.Role, Caps: u.Permissions}
}

// CanLogin reports whether the account may authenticate.
func (u *User) CanLogin() bool {
	return u.Status == StatusActive
}

// ValidRole reports whether r is a known role.
func ValidRole(r string) bool {
	switch r {
	case auth.RoleUser, auth.RoleManager, auth.RoleAdmin:
		return true
	}
	return false
}

// ValidStatus reports whether s is a known account status.
func ValidStatus(s string) bool {
	switch s {
	case StatusActive, StatusInactive, StatusSuspended:
		return true
	}
	return false
}

// Validate checks the fields required at registration time.
func (u *User) Validate() error {
	fields := map[string]string{}
	if u.Name == "" {
		fields["name"] = "name is required"
	}
	if u.Email == "" {
		fields["email"] = "email is required"
	} else if _, err := mail.ParseAddress(u.Email); err != nil {
		fields["email"] = "invalid email address"
	}
	if u.Role != "" && !ValidRole(u.Role) {
		fields["role"] = "invalid role"
	}
	if u.Status != "" && !ValidStatus(u.Status) {
		fields["status"] = "invalid status"
	}
	if len(fields) > 0 {
		return errs.ValidationFields("validation failed", fields)
	}
	return nil
}
