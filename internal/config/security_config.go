package config

import "time"

type SecurityConfig interface {
	GetMaxSessionAge() time.Duration
	GetSessionCookieName() string
	GetRequestTimeout() time.Duration
	GetAdminUsername() string
	GetAdminPassword() string
}

type Security struct{}

var _ SecurityConfig = Security{}

// GetMaxSessionAge bounds the session cookie and the stored session record
func (Security) GetMaxSessionAge() time.Duration {
	return GetEnvDuration("SESSION_MAX_AGE", 30*24*time.Hour)
}

func (Security) GetSessionCookieName() string {
	return GetEnv("SESSION_COOKIE_NAME", "admin_session")
}

func (Security) GetRequestTimeout() time.Duration {
	return GetEnvDuration("REQUEST_TIMEOUT", 60*time.Second)
}

func (Security) GetAdminUsername() string {
	return GetEnv("ADMIN_USERNAME", "admin")
}

// GetAdminPassword seeds the bootstrap admin account. Empty generates a password on first start.
func (Security) GetAdminPassword() string {
	return GetEnv("ADMIN_PASSWORD", "")
}
