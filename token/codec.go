package token

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	apperrors "github.com/jrsteele09/go-admin-session/internal/errors"
)

// Signatures are checked by the issuer on every exchange, not here.
var unverifiedParser = jwt.NewParser()

// Decode parses a compact three-segment token into Claims without verifying its signature.
// Any failure is reported as a *errors.DecodeError.
func Decode(raw string) (*Claims, error) {
	if raw == "" {
		return nil, &apperrors.DecodeError{Reason: "empty token"}
	}
	if segments := strings.Count(raw, ".") + 1; segments != 3 {
		return nil, &apperrors.DecodeError{Reason: fmt.Sprintf("expected 3 segments, got %d", segments)}
	}

	claims := &Claims{}
	if _, _, err := unverifiedParser.ParseUnverified(raw, claims); err != nil {
		return nil, &apperrors.DecodeError{Reason: "malformed token", Err: err}
	}
	return claims, nil
}

// ExpiryOf returns the token's exp claim as an instant. ok is false when the token
// cannot be decoded or carries no expiry.
func ExpiryOf(raw string) (expiry time.Time, ok bool) {
	claims, err := Decode(raw)
	if err != nil || claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// looksLikeJWT reports whether raw has the compact serialization shape
func looksLikeJWT(raw string) bool {
	return strings.Count(raw, ".") == 2
}
