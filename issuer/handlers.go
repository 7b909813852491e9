package issuer

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-admin-session/exchange"
	apperrors "github.com/jrsteele09/go-admin-session/internal/errors"
	"github.com/jrsteele09/go-admin-session/oauth2"
	"github.com/jrsteele09/go-admin-session/token"
	"github.com/rs/zerolog/log"
)

// Endpoint paths, relative to the issuer URL
const (
	RouteToken     = "/oauth2/token"
	RouteRevoke    = "/oauth2/revoke"
	RouteDiscovery = "/.well-known/openid-configuration"
)

// TokenHandler serves POST /oauth2/token for the password and refresh_token grants
func (s *Service) TokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeExchangeError(w, "", apperrors.Wrapf(apperrors.ErrInvalidRequest, "malformed form body"))
			return
		}
		if !s.authenticateClient(r) {
			w.Header().Set("WWW-Authenticate", `Basic realm="oauth2"`)
			writeTokenError(w, http.StatusUnauthorized, oauth2.ErrorInvalidClient, "client authentication failed")
			return
		}

		var (
			grant exchange.Grant
			err   error
		)
		grantType := oauth2.GrantType(r.PostFormValue("grant_type"))
		switch grantType {
		case oauth2.PasswordGrant:
			grant, err = s.Login(r.Context(), exchange.Credentials{
				Username: r.PostFormValue("username"),
				Password: r.PostFormValue("password"),
			})
		case oauth2.RefreshTokenGrant:
			refreshToken := r.PostFormValue("refresh_token")
			if refreshToken == "" {
				err = apperrors.Wrapf(apperrors.ErrInvalidRequest, "refresh_token is required")
				break
			}
			grant, err = s.Refresh(r.Context(), refreshToken)
		default:
			err = apperrors.Wrapf(apperrors.ErrUnsupportedGrantType, "grant_type must be password or refresh_token")
		}

		if err != nil {
			writeExchangeError(w, grantType, err)
			return
		}
		writeJSON(w, http.StatusOK, s.tokenResponse(grant))
	}
}

// RevokeHandler serves POST /oauth2/revoke (RFC 7009). It always answers 200 for a well formed request.
func (s *Service) RevokeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeExchangeError(w, "", apperrors.Wrapf(apperrors.ErrInvalidRequest, "malformed form body"))
			return
		}
		if !s.authenticateClient(r) {
			writeTokenError(w, http.StatusUnauthorized, oauth2.ErrorInvalidClient, "client authentication failed")
			return
		}
		tok := r.PostFormValue("token")
		if tok == "" {
			writeExchangeError(w, "", apperrors.Wrapf(apperrors.ErrInvalidRequest, "token is required"))
			return
		}
		if hint := oauth2.TokenTypeHint(r.PostFormValue("token_type_hint")); hint == oauth2.AccessTokenHint {
			// access tokens are short lived and not tracked
			w.WriteHeader(http.StatusOK)
			return
		}
		if err := s.Revoke(r.Context(), tok); err != nil {
			log.Err(err).Msg("Failed to revoke refresh token")
			writeTokenError(w, http.StatusServiceUnavailable, oauth2.ErrorServerError, "")
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// DiscoveryHandler publishes provider metadata so clients can locate the token endpoint
func (s *Service) DiscoveryHandler() http.HandlerFunc {
	doc := oauth2.DiscoveryDocument{
		Issuer:                            s.issuer,
		TokenEndpoint:                     strings.TrimSuffix(s.issuer, "/") + RouteToken,
		RevocationEndpoint:                strings.TrimSuffix(s.issuer, "/") + RouteRevoke,
		GrantTypesSupported:               []string{string(oauth2.PasswordGrant), string(oauth2.RefreshTokenGrant)},
		TokenEndpointAuthMethodsSupported: []string{"client_secret_basic", "client_secret_post"},
		IDTokenSigningAlgValuesSupported:  []string{s.signer.GetSigningMethod().Alg()},
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, doc)
	}
}

func (s *Service) authenticateClient(r *http.Request) bool {
	if s.clientID == "" {
		return true
	}
	clientID, clientSecret, ok := r.BasicAuth()
	if !ok {
		clientID = r.PostFormValue("client_id")
		clientSecret = r.PostFormValue("client_secret")
	}
	if clientID != s.clientID {
		return false
	}
	if s.clientSecret == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(clientSecret), []byte(s.clientSecret)) == 1
}

func (s *Service) tokenResponse(grant exchange.Grant) oauth2.TokenResponse {
	expiresIn := int(s.accessTTL.Seconds())
	if expiry, ok := token.ExpiryOf(grant.AccessToken); ok {
		expiresIn = int(expiry.Sub(s.nowFunc()).Seconds())
	}
	return oauth2.TokenResponse{
		AccessToken:  &grant.AccessToken,
		TokenType:    "bearer",
		ExpiresIn:    expiresIn,
		RefreshToken: &grant.RefreshToken,
		UserInfo: &oauth2.UserInfo{
			ID:          grant.Identity.UserID,
			Username:    grant.Identity.Username,
			Role:        grant.Identity.Role,
			Roles:       grant.Identity.Roles,
			Permissions: grant.Identity.Permissions,
		},
	}
}

// writeExchangeError maps request and exchange failures to RFC 6749 error responses
func writeExchangeError(w http.ResponseWriter, grantType oauth2.GrantType, err error) {
	switch {
	case apperrors.Is(err, apperrors.ErrInvalidRequest):
		writeTokenError(w, http.StatusBadRequest, oauth2.ErrorInvalidRequest, err.Error())
		return
	case apperrors.Is(err, apperrors.ErrUnsupportedGrantType):
		writeTokenError(w, http.StatusBadRequest, oauth2.ErrorUnsupportedGrantType, err.Error())
		return
	}

	var ce *apperrors.CredentialError
	if !apperrors.As(err, &ce) {
		log.Err(err).Str("grant_type", string(grantType)).Msg("Token exchange failed")
		writeTokenError(w, http.StatusInternalServerError, oauth2.ErrorServerError, apperrors.ErrInternal.Error())
		return
	}
	code := oauth2.ErrorInvalidGrant
	if grantType == oauth2.PasswordGrant && ce.Code != apperrors.CodeInvalidCredentials {
		code = oauth2.ErrorAccessDenied
	}
	writeTokenError(w, http.StatusBadRequest, code, ce.Message)
}

func writeTokenError(w http.ResponseWriter, status int, code oauth2.ErrorCode, description string) {
	writeJSON(w, status, oauth2.ErrorResponse{Error: code, ErrorDescription: description})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Err(err).Msg("Failed to encode response")
	}
}
