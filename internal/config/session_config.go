package config

import "time"

// SessionConfig holds the token lifecycle knobs of the session state machine.
type SessionConfig interface {
	GetExpiryBuffer() time.Duration
	GetMinRefreshValidity() time.Duration
	GetRefreshMaxRetries() int
	GetRefreshBackoffBase() time.Duration
	GetExchangeTimeout() time.Duration
}

type Session struct{}

var _ SessionConfig = Session{}

// GetExpiryBuffer is how long before expiry an access token counts as expiring soon
func (Session) GetExpiryBuffer() time.Duration {
	return GetEnvDuration("TOKEN_EXPIRY_BUFFER", 5*time.Minute)
}

// GetMinRefreshValidity is the remaining lifetime a refresh token needs before it is used
func (Session) GetMinRefreshValidity() time.Duration {
	return GetEnvDuration("REFRESH_MIN_VALIDITY", 2*time.Minute)
}

// GetRefreshMaxRetries counts retries after the first attempt
func (Session) GetRefreshMaxRetries() int {
	return GetEnvInt("REFRESH_MAX_RETRIES", 2)
}

func (Session) GetRefreshBackoffBase() time.Duration {
	return GetEnvDuration("REFRESH_BACKOFF_BASE", 1*time.Second)
}

// GetExchangeTimeout bounds a single login or refresh call to the issuer
func (Session) GetExchangeTimeout() time.Duration {
	return GetEnvDuration("EXCHANGE_TIMEOUT", 30*time.Second)
}
