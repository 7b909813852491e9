package token

import "time"

// DefaultAccessHorizon is assumed for access tokens whose expiry cannot be decoded
const DefaultAccessHorizon = 1 * time.Hour

// Pair is the access/refresh credential pair held by a session.
// It is replaced as a whole on login and on every successful refresh.
type Pair struct {
	AccessToken          string    `json:"access_token"`
	RefreshToken         string    `json:"refresh_token"`
	AccessTokenExpiresAt time.Time `json:"access_token_expires_at"`
}

// NewPair builds a Pair, taking the access expiry from the token's exp claim
// or issuedAt plus DefaultAccessHorizon when the claim is not decodable.
func NewPair(accessToken, refreshToken string, issuedAt time.Time) Pair {
	return NewPairWithHorizon(accessToken, refreshToken, issuedAt, DefaultAccessHorizon)
}

// NewPairWithHorizon is NewPair with a configurable fallback horizon
func NewPairWithHorizon(accessToken, refreshToken string, issuedAt time.Time, horizon time.Duration) Pair {
	expiresAt, ok := ExpiryOf(accessToken)
	if !ok {
		expiresAt = issuedAt.Add(horizon)
	}
	return Pair{
		AccessToken:          accessToken,
		RefreshToken:         refreshToken,
		AccessTokenExpiresAt: expiresAt,
	}
}

func (p Pair) IsZero() bool {
	return p.AccessToken == "" && p.RefreshToken == ""
}
