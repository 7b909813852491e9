package token

import (
	"github.com/golang-jwt/jwt/v5"
)

// Token use values carried in the token_use claim
const (
	UseAccess  = "access"
	UseRefresh = "refresh"
)

// Claims is the decoded payload of an access or refresh token.
// It is a read-only view and is never persisted on its own.
type Claims struct {
	jwt.RegisteredClaims

	UserID      string   `json:"id,omitempty"`
	Username    string   `json:"username,omitempty"`
	Role        string   `json:"role,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	TokenUse    string   `json:"token_use,omitempty"`
}

// Identity is the principal a session belongs to
type Identity struct {
	UserID      string   `json:"user_id"`
	Username    string   `json:"username,omitempty"`
	Role        string   `json:"role,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// IsZero reports whether no principal is set
func (i Identity) IsZero() bool {
	return i.UserID == "" && i.Username == ""
}

// Identity derives the principal from the claims. The subject wins over the legacy id claim.
func (c *Claims) Identity() Identity {
	id := Identity{
		UserID:      c.Subject,
		Username:    c.Username,
		Role:        c.Role,
		Roles:       c.Roles,
		Permissions: c.Permissions,
	}
	if id.UserID == "" {
		id.UserID = c.UserID
	}
	if id.Role == "" && len(id.Roles) > 0 {
		id.Role = id.Roles[0]
	}
	return id
}
