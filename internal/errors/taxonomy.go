package errors

import (
	"context"
	"errors"
	"fmt"
)

// Code is the machine-readable error code surfaced to callers of the login
// and refresh exchanges.
type Code string

const (
	CodeInvalidCredentials Code = "INVALID_CREDENTIALS"
	CodeAuthError          Code = "AUTH_ERROR"
	CodeUnknownError       Code = "UNKNOWN_ERROR"
)

// DecodeError reports a token string that could not be decoded into claims.
// It is local and never retried.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode token: %s: %v", e.Reason, e.Err)
	}
	return "decode token: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

// CredentialError reports rejected credentials: a bad username/password, or a
// refresh token the issuer will not accept. Retrying cannot help.
type CredentialError struct {
	Code    Code
	Message string
	Err     error
}

// NewCredentialError builds a CredentialError. An empty code defaults to AUTH_ERROR.
func NewCredentialError(code Code, message string, err error) *CredentialError {
	if code == "" {
		code = CodeAuthError
	}
	return &CredentialError{Code: code, Message: message, Err: err}
}

func (e *CredentialError) Error() string {
	msg := fmt.Sprintf("credential error [%s]", e.Code)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CredentialError) Unwrap() error { return e.Err }

// TransientError reports a timeout or network failure. Refreshes retry it.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient failure: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// RefreshError is the terminal outcome of a refresh that did not succeed.
// Err is the last underlying cause.
type RefreshError struct {
	Attempts int
	Err      error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("refresh failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *RefreshError) Unwrap() error { return e.Err }

// IsCredential reports whether err carries a CredentialError.
func IsCredential(err error) bool {
	var ce *CredentialError
	return errors.As(err, &ce)
}

// IsTransient reports whether err carries a TransientError or a context deadline.
func IsTransient(err error) bool {
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// IsDecode reports whether err carries a DecodeError.
func IsDecode(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// CodeOf maps an error to its machine-readable code. A nil error has no code.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var ce *CredentialError
	if errors.As(err, &ce) {
		return ce.Code
	}
	if IsDecode(err) {
		return CodeAuthError
	}
	return CodeUnknownError
}
