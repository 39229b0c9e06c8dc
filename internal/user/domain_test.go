// internal/user/domain_test.go
package user

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"stocktrack/internal/auth"
	"stocktrack/internal/errs"
)

func TestDefaultCapabilitiesByRole(t *testing.T) {
	assert.Equal(t, auth.Capabilities{
		CanCheckout:      true,
		CanManageItems:   true,
		CanManageUsers:   true,
		CanViewAnalytics: true,
	}, DefaultCapabilities(auth.RoleAdmin))

	caps := DefaultCapabilities(auth.RoleManager)
	assert.True(t, caps.CanManageItems)
	assert.False(t, caps.CanManageUsers, "only admins manage accounts")

	assert.Equal(t, auth.Capabilities{CanCheckout: true}, DefaultCapabilities(auth.RoleUser))
}

func TestIdentityCarriesStoredPermissions(t *testing.T) {
	// Per-account edits may diverge from the role defaults; the token
	// identity reflects what is stored, not the role.
	u := &User{
		ID:          uuid.New(),
		Role:        auth.RoleUser,
		Permissions: auth.Capabilities{CanCheckout: true, CanManageItems: true},
	}

	id := u.Identity()
	assert.Equal(t, auth.RoleUser, id.Role)
	assert.True(t, id.Caps.CanManageItems)
	assert.False(t, id.Caps.CanManageUsers)
}

func TestCanLogin(t *testing.T) {
	assert.True(t, (&User{Status: StatusActive}).CanLogin())
	assert.False(t, (&User{Status: StatusSuspended}).CanLogin())
	assert.False(t, (&User{Status: StatusInactive}).CanLogin())
}

func TestValidate(t *testing.T) {
	valid := &User{Email: "dana@example.com", Name: "Dana Field", Role: auth.RoleUser}
	assert.NoError(t, valid.Validate())

	invalid := &User{Email: "not-an-email", Role: "superuser"}
	err := invalid.Validate()
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
	fields := errs.FieldsOf(err)
	assert.Contains(t, fields, "name")
	assert.Contains(t, fields, "email")
	assert.Contains(t, fields, "role")
}
