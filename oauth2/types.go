package oauth2

// GrantType represents the OAuth 2.0 grant type used at the token endpoint.
// Determines what credentials are required to obtain tokens.
type GrantType string

const (
	// PasswordGrant exchanges a username and password for tokens.
	// Used in: Admin dashboard login form (resource owner password credentials, RFC 6749 section 4.3)
	// Token request includes: username, password, client_id, client_secret (if confidential)
	// Returns: access_token, refresh_token, user_info
	PasswordGrant GrantType = "password"

	// RefreshTokenGrant exchanges a refresh token for new tokens.
	// Used in: Silent access-token refresh while a session is active
	// Token request includes: refresh_token, client_id, client_secret (if confidential)
	// Returns: new access_token and rotated refresh_token
	// Note: The presented refresh token is invalidated, replaying it fails with invalid_grant
	RefreshTokenGrant GrantType = "refresh_token"
)

// TokenTypeHint tells the revocation endpoint which kind of token is presented (RFC 7009).
type TokenTypeHint string

const (
	RefreshTokenHint TokenTypeHint = "refresh_token"
	AccessTokenHint  TokenTypeHint = "access_token"
)

// ErrorCode is the "error" member of a token endpoint error response (RFC 6749 section 5.2).
type ErrorCode string

const (
	// ErrorInvalidRequest: missing or malformed parameter
	ErrorInvalidRequest ErrorCode = "invalid_request"

	// ErrorInvalidClient: client authentication failed
	ErrorInvalidClient ErrorCode = "invalid_client"

	// ErrorInvalidGrant: wrong username/password, or an invalid, expired or replayed refresh token
	ErrorInvalidGrant ErrorCode = "invalid_grant"

	// ErrorAccessDenied: credentials were correct but the account may not sign in (e.g. inactive)
	ErrorAccessDenied ErrorCode = "access_denied"

	// ErrorUnsupportedGrantType: grant_type is not password or refresh_token
	ErrorUnsupportedGrantType ErrorCode = "unsupported_grant_type"

	// ErrorServerError: unexpected failure inside the issuer
	ErrorServerError ErrorCode = "server_error"
)

// ErrorResponse is the JSON body returned by the token endpoint on failure.
// Example: {"error":"invalid_grant","error_description":"Incorrect username or password"}
type ErrorResponse struct {
	Error            ErrorCode `json:"error"`
	ErrorDescription string    `json:"error_description,omitempty"`
}
