// internal/user/service.go
package user

import (
	"context"

	"github.com/google/uuid"

	"stocktrack/internal/auth"
	"stocktrack/internal/web"
)

// RegisterRequest is the payload for account creation.
type RegisterRequest struct {
	Email      string `json:"email"`
	Name       string `json:"name"`
	Password   string `json:"password"`
	Department string `json:"department,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

// UpdateRequest carries the fields an administrator may change on an
// account. Nil pointers leave the current value untouched.
type UpdateRequest struct {
	Name       *string `json:"name,omitempty"`
	Role       *string `json:"role,omitempty"`
	Status     *string `json:"status,omitempty"`
	Department *string `json:"department,omitempty"`
	Phone      *string `json:"phone,omitempty"`
}

// Filter narrows user listings.
type Filter struct {
	Role   string
	Status string
	Search string
	Page   int
	Limit  int
}

// Service manages the account directory.
type Service interface {
	Register(ctx context.Context, req RegisterRequest) (*User, error)
	Authenticate(ctx context.Context, email, password string) (*User, error)
	Get(ctx context.Context, id uuid.UUID) (*User, error)
	List(ctx context.Context, f Filter) ([]*User, *web.Pagination, error)
	Update(ctx context.Context, id uuid.UUID, req UpdateRequest) (*User, error)

	// UpdatePermissions replaces the per-account permission flags.
	UpdatePermissions(ctx context.Context, id uuid.UUID, caps auth.Capabilities) (*User, error)

	// ListItemManagers returns active accounts holding a manager or
	// admin role, for approval and extension fan-out.
	ListItemManagers(ctx context.Context) ([]*User, error)
}
