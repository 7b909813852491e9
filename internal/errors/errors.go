package errors

import (
	"errors"
	"fmt"
)

// Common error types for the admin session service
var (
	// Authentication errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserInactive       = errors.New("user is not active")
	ErrUserNotFound       = errors.New("user not found")

	// Token errors
	ErrInvalidToken        = errors.New("invalid token")
	ErrTokenExpired        = errors.New("token expired")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrRefreshTokenExpired = errors.New("refresh token expired")
	ErrRefreshUnusable     = errors.New("refresh token unusable")
	ErrMalformedResponse   = errors.New("malformed token response")

	// Authorization errors
	ErrInvalidGrant         = errors.New("invalid grant")
	ErrUnsupportedGrantType = errors.New("unsupported grant type")
	ErrInvalidRequest       = errors.New("invalid request")

	// Session errors
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionInvalid   = errors.New("session invalid")
	ErrNotAuthenticated = errors.New("not authenticated")

	// General errors
	ErrNotFound    = errors.New("not found")
	ErrInternal    = errors.New("internal error")
	ErrUnsupported = errors.New("unsupported operation")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
