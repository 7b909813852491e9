package config

import "time"

// OAuthConfig covers both sides of the credential exchange: the client settings used
// to reach an issuer, and the token lifetimes of the built-in issuer.
type OAuthConfig interface {
	GetIssuerURL() string
	GetTokenURL() string
	GetRevokeURL() string
	GetClientID() string
	GetClientSecret() string
	GetScopes() []string
	GetAudience() string
	GetSigningSecret() string
	GetDefaultAccessTokenExpiry() time.Duration
	GetIssuerAccessTokenExpiry() time.Duration
	GetIssuerRefreshTokenExpiry() time.Duration
}

type OAuth struct{}

var _ OAuthConfig = OAuth{}

// GetIssuerURL returns an external OIDC issuer to discover endpoints from.
// Empty means the built-in issuer mounted under /oauth2 is used.
func (OAuth) GetIssuerURL() string {
	return GetEnv("OAUTH_ISSUER_URL", "")
}

// GetTokenURL overrides the token endpoint (skips discovery when set)
func (OAuth) GetTokenURL() string {
	return GetEnv("OAUTH_TOKEN_URL", "")
}

func (OAuth) GetRevokeURL() string {
	return GetEnv("OAUTH_REVOKE_URL", "")
}

func (OAuth) GetClientID() string {
	return GetEnv("OAUTH_CLIENT_ID", "admin-dashboard")
}

func (OAuth) GetClientSecret() string {
	return GetEnv("OAUTH_CLIENT_SECRET", "")
}

func (OAuth) GetScopes() []string {
	return GetEnvList("OAUTH_SCOPES", []string{"openid", "profile", "offline_access"})
}

func (OAuth) GetAudience() string {
	return GetEnv("OAUTH_AUDIENCE", "admin")
}

// GetSigningSecret is the HMAC secret of the built-in issuer. Empty generates one at startup.
func (OAuth) GetSigningSecret() string {
	return GetEnv("TOKEN_SIGNING_SECRET", "")
}

// GetDefaultAccessTokenExpiry is the horizon assumed for access tokens without a decodable expiry
func (OAuth) GetDefaultAccessTokenExpiry() time.Duration {
	return 1 * time.Hour
}

func (OAuth) GetIssuerAccessTokenExpiry() time.Duration {
	return GetEnvDuration("ACCESS_TOKEN_EXPIRY", 10*time.Minute)
}

func (OAuth) GetIssuerRefreshTokenExpiry() time.Duration {
	return GetEnvDuration("REFRESH_TOKEN_EXPIRY", 30*24*time.Hour) // 30 days
}
