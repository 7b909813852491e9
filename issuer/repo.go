package issuer

import (
	"time"
)

// StoredRefreshToken is the server-side record of an issued refresh token.
// Only the most recent token per user is kept, so a rotated token no longer matches.
type StoredRefreshToken struct {
	ID        string    // jti of the refresh token
	UserID    string    // subject the token was issued to
	IssuedAt  time.Time // issued at time
	ExpiresAt time.Time // exp of the refresh token
}

// Repo manages server-side storage of refresh token records, keyed by jti.
type Repo interface {
	Upsert(refreshToken *StoredRefreshToken) error
	Delete(id string) error
	Get(id string) (*StoredRefreshToken, error)
	GetByUserID(userID string) (*StoredRefreshToken, error)
}
