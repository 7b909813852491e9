// Package exchange is the boundary to the credential issuer: the login exchange
// (username/password for a token pair), the refresh exchange and revocation.
package exchange

import (
	"context"

	"github.com/jrsteele09/go-admin-session/token"
)

// Credentials are the username/password submitted at login
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Grant is a successful exchange result
type Grant struct {
	AccessToken  string
	RefreshToken string
	Identity     token.Identity
}

// Authenticator performs the login exchange. Failures are *errors.CredentialError
// (INVALID_CREDENTIALS or AUTH_ERROR) or *errors.TransientError.
type Authenticator interface {
	Login(ctx context.Context, creds Credentials) (Grant, error)
}

// Refresher performs the refresh exchange. Failures are classified as credential or transient.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (Grant, error)
}

// Revoker invalidates a refresh token at the issuer
type Revoker interface {
	Revoke(ctx context.Context, refreshToken string) error
}

type Exchanger interface {
	Authenticator
	Refresher
	Revoker
}
