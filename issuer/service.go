// Package issuer is the built-in credential issuer: it checks admin passwords,
// signs access and refresh tokens and rotates refresh tokens.
package issuer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-admin-session/exchange"
	apperrors "github.com/jrsteele09/go-admin-session/internal/errors"
	"github.com/jrsteele09/go-admin-session/token"
	"github.com/jrsteele09/go-admin-session/users"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	DefaultAccessTokenExpiry  = 10 * time.Minute
	DefaultRefreshTokenExpiry = 30 * 24 * time.Hour

	msgIncorrectCredentials = "Incorrect username or password"
	msgAccountNotActive     = "Account is not active"
	msgInvalidRefresh       = "Invalid token or expired token."
)

var dummyPasswordHash = sync.OnceValue(func() string {
	hash, err := users.HashPassword(uuid.NewString())
	if err != nil {
		log.Err(err).Msg("failed to hash dummy password")
	}
	return hash
})

// Service issues token pairs. It implements exchange.Exchanger in-process.
type Service struct {
	users         users.UserRepo
	refreshTokens Repo
	signer        token.Signer
	issuer        string
	audience      string
	accessTTL     time.Duration
	refreshTTL    time.Duration
	clientID      string
	clientSecret  string
	nowFunc       func() time.Time

	// serialises check-and-rotate so a refresh token is redeemed at most once
	rotation sync.Mutex
}

var _ exchange.Exchanger = (*Service)(nil)

type Option func(*Service)

func WithAudience(audience string) Option {
	return func(s *Service) {
		s.audience = audience
	}
}

// WithTokenExpiry sets the access and refresh token lifetimes
func WithTokenExpiry(access, refresh time.Duration) Option {
	return func(s *Service) {
		s.accessTTL = access
		s.refreshTTL = refresh
	}
}

// WithClient requires token endpoint callers to authenticate as this client.
// An empty secret accepts the client ID alone.
func WithClient(clientID, clientSecret string) Option {
	return func(s *Service) {
		s.clientID = clientID
		s.clientSecret = clientSecret
	}
}

func WithNowFunc(nowFunc func() time.Time) Option {
	return func(s *Service) {
		s.nowFunc = nowFunc
	}
}

func New(userRepo users.UserRepo, refreshRepo Repo, signer token.Signer, issuerURL string, opts ...Option) *Service {
	s := &Service{
		users:         userRepo,
		refreshTokens: refreshRepo,
		signer:        signer,
		issuer:        issuerURL,
		accessTTL:     DefaultAccessTokenExpiry,
		refreshTTL:    DefaultRefreshTokenExpiry,
		nowFunc:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Issuer() string {
	return s.issuer
}

// Login checks the password of an active account and issues a new token pair,
// replacing any refresh token the user held before.
func (s *Service) Login(_ context.Context, creds exchange.Credentials) (exchange.Grant, error) {
	user, err := s.users.GetByUsername(creds.Username)
	if err != nil || user == nil {
		// unknown usernames cost one bcrypt comparison like known ones
		users.CheckPasswordHash(creds.Password, dummyPasswordHash())
		return exchange.Grant{}, apperrors.NewCredentialError(apperrors.CodeInvalidCredentials, msgIncorrectCredentials, apperrors.ErrInvalidCredentials)
	}
	if !user.CheckPassword(creds.Password) {
		return exchange.Grant{}, apperrors.NewCredentialError(apperrors.CodeInvalidCredentials, msgIncorrectCredentials, apperrors.ErrInvalidCredentials)
	}
	if !user.IsActive() {
		return exchange.Grant{}, apperrors.NewCredentialError(apperrors.CodeAuthError, msgAccountNotActive, apperrors.ErrUserInactive)
	}

	now := s.nowFunc()
	if err := s.users.SetLastLogin(user.ID, now); err != nil {
		log.Warn().Err(err).Str("user_id", user.ID).Msg("failed to record last login")
	}

	s.rotation.Lock()
	defer s.rotation.Unlock()
	return s.issue(user, now)
}

// Refresh verifies a refresh token, checks it is the user's current one and rotates the pair.
func (s *Service) Refresh(_ context.Context, refreshToken string) (exchange.Grant, error) {
	claims, err := s.signer.Verify(refreshToken, jwt.WithTimeFunc(s.nowFunc), jwt.WithIssuer(s.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return exchange.Grant{}, invalidRefresh(apperrors.ErrRefreshTokenExpired)
		}
		return exchange.Grant{}, invalidRefresh(pkgerrors.Wrap(apperrors.ErrInvalidRefreshToken, err.Error()))
	}
	if claims.TokenUse != token.UseRefresh {
		return exchange.Grant{}, invalidRefresh(pkgerrors.Wrap(apperrors.ErrInvalidRefreshToken, "not a refresh token"))
	}

	s.rotation.Lock()
	defer s.rotation.Unlock()

	stored, err := s.refreshTokens.Get(claims.ID)
	if err != nil || stored.UserID != claims.Subject {
		return exchange.Grant{}, invalidRefresh(pkgerrors.Wrap(apperrors.ErrInvalidRefreshToken, "refresh token is not active"))
	}

	user, err := s.users.GetByID(claims.Subject)
	if err != nil {
		return exchange.Grant{}, invalidRefresh(pkgerrors.Wrap(apperrors.ErrInvalidRefreshToken, "unknown subject"))
	}
	if !user.IsActive() {
		return exchange.Grant{}, apperrors.NewCredentialError(apperrors.CodeAuthError, msgAccountNotActive, apperrors.ErrUserInactive)
	}

	return s.issue(user, s.nowFunc())
}

// Revoke forgets a refresh token. Tokens that do not verify or are already gone are ignored (RFC 7009).
func (s *Service) Revoke(_ context.Context, refreshToken string) error {
	claims, err := s.signer.Verify(refreshToken, jwt.WithoutClaimsValidation())
	if err != nil || claims.ID == "" {
		return nil
	}
	if err := s.refreshTokens.Delete(claims.ID); err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return pkgerrors.Wrap(err, "failed to delete refresh token")
	}
	return nil
}

func (s *Service) issue(user *users.User, now time.Time) (exchange.Grant, error) {
	identity := token.Identity{
		UserID:      user.ID,
		Username:    user.Username,
		Role:        user.Role,
		Roles:       user.Roles(),
		Permissions: user.Permissions,
	}

	accessToken, err := s.signer.Sign(s.claims(identity, token.UseAccess, uuid.NewString(), now, s.accessTTL))
	if err != nil {
		return exchange.Grant{}, pkgerrors.Wrap(err, "failed to sign access token")
	}

	refreshID := uuid.NewString()
	refreshToken, err := s.signer.Sign(s.claims(identity, token.UseRefresh, refreshID, now, s.refreshTTL))
	if err != nil {
		return exchange.Grant{}, pkgerrors.Wrap(err, "failed to sign refresh token")
	}

	// single refresh token per user
	if existing, err := s.refreshTokens.GetByUserID(user.ID); err == nil && existing != nil {
		if err := s.refreshTokens.Delete(existing.ID); err != nil {
			return exchange.Grant{}, pkgerrors.Wrap(err, "failed to delete existing refresh token")
		}
	}
	if err := s.refreshTokens.Upsert(&StoredRefreshToken{
		ID:        refreshID,
		UserID:    user.ID,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.refreshTTL),
	}); err != nil {
		return exchange.Grant{}, pkgerrors.Wrap(err, "failed to store refresh token")
	}

	return exchange.Grant{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Identity:     identity,
	}, nil
}

func (s *Service) claims(identity token.Identity, use, id string, now time.Time, ttl time.Duration) *token.Claims {
	claims := &token.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Subject:   identity.UserID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID:   identity.UserID,
		Username: identity.Username,
		TokenUse: use,
	}
	if s.audience != "" {
		claims.Audience = jwt.ClaimStrings{s.audience}
	}
	if use == token.UseAccess {
		claims.Role = identity.Role
		claims.Roles = identity.Roles
		claims.Permissions = identity.Permissions
	}
	return claims
}

func invalidRefresh(err error) error {
	return apperrors.NewCredentialError(apperrors.CodeAuthError, msgInvalidRefresh, err)
}
