package token

import "time"

const (
	DefaultExpiryBuffer       = 5 * time.Minute
	DefaultMinRefreshValidity = 2 * time.Minute
)

// Status is the expiry classification of a token
type Status int

const (
	Valid Status = iota
	ExpiringSoon
	Expired
)

func (s Status) String() string {
	switch s {
	case Valid:
		return "valid"
	case ExpiringSoon:
		return "expiring_soon"
	default:
		return "expired"
	}
}

// Policy decides whether tokens are safe to use. Undecodable tokens are expired.
type Policy struct {
	buffer             time.Duration
	minRefreshValidity time.Duration
	nowFunc            func() time.Time
}

type PolicyOption func(*Policy)

// WithBuffer sets the window before expiry in which a token counts as expiring soon
func WithBuffer(d time.Duration) PolicyOption {
	return func(p *Policy) {
		p.buffer = d
	}
}

// WithMinRefreshValidity sets the lifetime a refresh token must still have before it is used
func WithMinRefreshValidity(d time.Duration) PolicyOption {
	return func(p *Policy) {
		p.minRefreshValidity = d
	}
}

func WithNowFunc(nowFunc func() time.Time) PolicyOption {
	return func(p *Policy) {
		p.nowFunc = nowFunc
	}
}

func NewPolicy(opts ...PolicyOption) *Policy {
	p := &Policy{
		buffer:             DefaultExpiryBuffer,
		minRefreshValidity: DefaultMinRefreshValidity,
		nowFunc:            time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Policy) Now() time.Time {
	return p.nowFunc()
}

// ClassifyExpiry classifies an absolute expiry instant against the current time
func (p *Policy) ClassifyExpiry(expiry time.Time) Status {
	now := p.nowFunc()
	switch {
	case !now.Before(expiry):
		return Expired
	case !now.Before(expiry.Add(-p.buffer)):
		return ExpiringSoon
	default:
		return Valid
	}
}

// Classify classifies a raw token by its exp claim
func (p *Policy) Classify(raw string) Status {
	expiry, ok := ExpiryOf(raw)
	if !ok {
		return Expired
	}
	return p.ClassifyExpiry(expiry)
}

// ShouldRefresh is true when the token is absent, expired or expiring soon
func (p *Policy) ShouldRefresh(raw string) bool {
	if raw == "" {
		return true
	}
	return p.Classify(raw) != Valid
}

// ShouldRefreshPair applies ShouldRefresh to a pair using its recorded access expiry
func (p *Policy) ShouldRefreshPair(pair Pair) bool {
	if pair.AccessToken == "" || pair.AccessTokenExpiresAt.IsZero() {
		return true
	}
	return p.ClassifyExpiry(pair.AccessTokenExpiresAt) != Valid
}

// IsUsable reports whether a refresh token may be sent to the issuer. A JWT refresh
// token needs at least the minimum refresh validity left. Opaque refresh tokens carry
// no readable expiry and are left to the issuer to judge. A JWT-shaped token that
// does not decode is unusable.
func (p *Policy) IsUsable(refreshToken string) bool {
	if refreshToken == "" {
		return false
	}
	if !looksLikeJWT(refreshToken) {
		return true
	}
	claims, err := Decode(refreshToken)
	if err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return true
	}
	remaining := claims.ExpiresAt.Time.Sub(p.nowFunc())
	return remaining > 0 && remaining >= p.minRefreshValidity
}
