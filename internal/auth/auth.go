// internal/auth/auth.go
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Role names, in ascending order of privilege.
const (
	RoleUser    = "user"
	RoleManager = "manager"
	RoleAdmin   = "admin"
)

// Capabilities is the permission set resolved once per actor and
// passed into engine calls.
type Capabilities struct {
	CanCheckout      bool `json:"can_checkout"`
	CanManageItems   bool `json:"can_manage_items"`
	CanManageUsers   bool `json:"can_manage_users"`
	CanViewAnalytics bool `json:"can_view_analytics"`
}

// Identity is the authenticated actor attached to every request.
type Identity struct {
	UserID uuid.UUID    `json:"user_id"`
	Role   string       `json:"role"`
	Caps   Capabilities `json:"caps"`
}

// Elevated reports whether the actor holds a manager or admin role.
func (id Identity) Elevated() bool {
	return id.Role == RoleManager || id.Role == RoleAdmin
}

// Claims are the JWT claims carried by bearer tokens.
type Claims struct {
	Role string       `json:"role"`
	Caps Capabilities `json:"caps"`
	jwt.RegisteredClaims
}

// TokenManager issues and verifies bearer tokens.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	return &TokenManager{secret: []byte(secret), ttl: ttl}
}

// Issue signs a token for the given identity.
func (tm *TokenManager) Issue(id Identity) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: id.Role,
		Caps: id.Caps,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tm.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(tm.secret)
}

// Verify parses a token and reconstructs the identity.
func (tm *TokenManager) Verify(tokenStr string) (Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return tm.secret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return Identity{}, fmt.Errorf("invalid token")
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Identity{}, fmt.Errorf("invalid subject: %w", err)
	}

	return Identity{UserID: userID, Role: claims.Role, Caps: claims.Caps}, nil
}
