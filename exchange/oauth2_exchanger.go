package exchange

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	apperrors "github.com/jrsteele09/go-admin-session/internal/errors"
	"github.com/jrsteele09/go-admin-session/token"
	"golang.org/x/oauth2"
)

const userInfoField = "user_info"

// OAuth2Exchanger talks to an OAuth2 token endpoint using the resource owner
// password grant for login and the refresh_token grant for refresh.
type OAuth2Exchanger struct {
	config     *oauth2.Config
	revokeURL  string
	httpClient *http.Client
}

var _ Exchanger = (*OAuth2Exchanger)(nil)

type Option func(*OAuth2Exchanger)

// WithHTTPClient sets the client used for token and revocation requests
func WithHTTPClient(c *http.Client) Option {
	return func(e *OAuth2Exchanger) {
		e.httpClient = c
	}
}

// WithRevokeURL enables RFC 7009 revocation at logout
func WithRevokeURL(revokeURL string) Option {
	return func(e *OAuth2Exchanger) {
		e.revokeURL = revokeURL
	}
}

func NewOAuth2Exchanger(config *oauth2.Config, opts ...Option) *OAuth2Exchanger {
	e := &OAuth2Exchanger{
		config:     config,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Discover resolves the issuer's endpoints from its OpenID Connect discovery document.
// The returned revocation URL is empty when the issuer does not advertise one.
func Discover(ctx context.Context, issuerURL, clientID, clientSecret string, scopes []string) (*oauth2.Config, string, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create OIDC provider: %w", err)
	}

	var extra struct {
		RevocationEndpoint string   `json:"revocation_endpoint"`
		AuthMethods        []string `json:"token_endpoint_auth_methods_supported"`
	}
	if err := provider.Claims(&extra); err != nil {
		return nil, "", fmt.Errorf("failed to read provider metadata: %w", err)
	}

	endpoint := provider.Endpoint()
	endpoint.AuthStyle = authStyle(extra.AuthMethods)
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     endpoint,
		Scopes:       scopes,
	}, extra.RevocationEndpoint, nil
}

// authStyle picks how client credentials are sent, so no autodetect round trip is needed
func authStyle(methods []string) oauth2.AuthStyle {
	for _, m := range methods {
		if m == "client_secret_post" {
			return oauth2.AuthStyleInParams
		}
	}
	for _, m := range methods {
		if m == "client_secret_basic" {
			return oauth2.AuthStyleInHeader
		}
	}
	return oauth2.AuthStyleAutoDetect
}

func (e *OAuth2Exchanger) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, e.httpClient)
}

func (e *OAuth2Exchanger) Login(ctx context.Context, creds Credentials) (Grant, error) {
	if creds.Username == "" || creds.Password == "" {
		return Grant{}, apperrors.NewCredentialError(apperrors.CodeInvalidCredentials, "username and password are required", apperrors.ErrInvalidCredentials)
	}

	tok, err := e.config.PasswordCredentialsToken(e.clientContext(ctx), creds.Username, creds.Password)
	if err != nil {
		return Grant{}, classify("login", err, true)
	}
	return grantFromToken(tok, "", creds.Username)
}

func (e *OAuth2Exchanger) Refresh(ctx context.Context, refreshToken string) (Grant, error) {
	src := e.config.TokenSource(e.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return Grant{}, classify("refresh", err, false)
	}
	return grantFromToken(tok, refreshToken, "")
}

// Revoke posts the refresh token to the revocation endpoint. Without one configured it does nothing.
func (e *OAuth2Exchanger) Revoke(ctx context.Context, refreshToken string) error {
	if e.revokeURL == "" || refreshToken == "" {
		return nil
	}

	form := url.Values{
		"token":           {refreshToken},
		"token_type_hint": {"refresh_token"},
		"client_id":       {e.config.ClientID},
	}
	if e.config.ClientSecret != "" {
		form.Set("client_secret", e.config.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return &apperrors.TransientError{Op: "revoke", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("revoke: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// grantFromToken keeps the previous refresh token when the issuer does not rotate it
func grantFromToken(tok *oauth2.Token, previousRefresh, username string) (Grant, error) {
	if tok == nil || tok.AccessToken == "" {
		return Grant{}, apperrors.NewCredentialError(apperrors.CodeAuthError, "token response has no access token", apperrors.ErrMalformedResponse)
	}

	grant := Grant{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}
	if grant.RefreshToken == "" {
		grant.RefreshToken = previousRefresh
	}

	if claims, err := token.Decode(tok.AccessToken); err == nil {
		grant.Identity = claims.Identity()
	}
	if grant.Identity.IsZero() {
		grant.Identity = identityFromUserInfo(tok.Extra(userInfoField))
	}
	if grant.Identity.Username == "" {
		grant.Identity.Username = username
	}
	return grant, nil
}

func identityFromUserInfo(v interface{}) token.Identity {
	info, ok := v.(map[string]interface{})
	if !ok {
		return token.Identity{}
	}
	str := func(key string) string {
		s, _ := info[key].(string)
		return s
	}
	strs := func(key string) []string {
		raw, _ := info[key].([]interface{})
		var out []string
		for _, item := range raw {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}

	id := token.Identity{
		UserID:      str("id"),
		Username:    str("username"),
		Role:        str("role"),
		Roles:       strs("roles"),
		Permissions: strs("permissions"),
	}
	if id.Role == "" && len(id.Roles) > 0 {
		id.Role = id.Roles[0]
	}
	return id
}

// classify sorts an exchange failure into the credential or transient class.
// Server errors, throttling, network failures and deadlines are transient. Any
// other rejection, or a response that cannot be understood, is a credential error.
func classify(op string, err error, login bool) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &apperrors.TransientError{Op: op, Err: err}
	}

	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		if status >= http.StatusInternalServerError || status == http.StatusTooManyRequests {
			return &apperrors.TransientError{Op: op, Err: err}
		}
		if login && re.ErrorCode == "invalid_grant" {
			return apperrors.NewCredentialError(apperrors.CodeInvalidCredentials, re.ErrorDescription, apperrors.Wrapf(apperrors.ErrInvalidCredentials, "%s", op))
		}
		return apperrors.NewCredentialError(apperrors.CodeAuthError, re.ErrorDescription, apperrors.Wrapf(apperrors.ErrInvalidGrant, "%s: %s", op, re.ErrorCode))
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &apperrors.TransientError{Op: op, Err: err}
	}

	return apperrors.NewCredentialError(apperrors.CodeAuthError, "", apperrors.Wrapf(apperrors.ErrMalformedResponse, "%s: %v", op, err))
}
