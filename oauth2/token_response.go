package oauth2

// TokenResponse represents the response from an OAuth2 token request.
// This is the standard OAuth2 token endpoint response format as defined in RFC 6749.
// Returned from the /oauth2/token endpoint for both supported grant types.
type TokenResponse struct {
	// AccessToken is the JWT token used to access protected resources.
	// Example: "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."
	// Usage: Include in Authorization header: "Bearer <access_token>"
	// Lifespan: Short-lived (10 minutes by default)
	AccessToken *string `json:"access_token,omitempty"`

	// TokenType indicates how to use the access token (always "bearer" in this implementation).
	// Example: "bearer"
	// Required by RFC 6749 section 5.1
	TokenType string `json:"token_type,omitempty"`

	// ExpiresIn is the lifetime in seconds of the access token.
	// Example: 600 (for 10 minutes)
	// Note: This is a hint - actual expiration is in the JWT's "exp" claim
	ExpiresIn int `json:"expires_in,omitempty"`

	// RefreshToken is a signed JWT used to obtain new access tokens.
	// Usage: Send to /oauth2/token with grant_type=refresh_token
	// Lifespan: Long-lived (30 days by default)
	// Security: Rotates on each use, only the most recently issued one is accepted
	RefreshToken *string `json:"refresh_token,omitempty"`

	// Scope indicates the access token's granted permissions.
	// Example: "openid profile offline_access"
	Scope string `json:"scope,omitempty"`

	// UserInfo describes the signed-in principal so clients need not decode the token.
	UserInfo *UserInfo `json:"user_info,omitempty"`
}

// UserInfo is the identity block returned alongside tokens
type UserInfo struct {
	ID          string   `json:"id"`
	Username    string   `json:"username"`
	Role        string   `json:"role,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// DiscoveryDocument is the subset of OpenID Connect provider metadata the issuer publishes
// at /.well-known/openid-configuration.
type DiscoveryDocument struct {
	Issuer                            string   `json:"issuer"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	RevocationEndpoint                string   `json:"revocation_endpoint,omitempty"`
	GrantTypesSupported               []string `json:"grant_types_supported,omitempty"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported,omitempty"`
	IDTokenSigningAlgValuesSupported  []string `json:"id_token_signing_alg_values_supported,omitempty"`
}
