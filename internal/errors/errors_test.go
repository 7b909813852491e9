package errors_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	apperrors "github.com/jrsteele09/go-admin-session/internal/errors"
	"github.com/stretchr/testify/require"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want apperrors.Code
	}{
		{"nil", nil, ""},
		{"invalid credentials", apperrors.NewCredentialError(apperrors.CodeInvalidCredentials, "bad password", nil), apperrors.CodeInvalidCredentials},
		{"empty code defaults", apperrors.NewCredentialError("", "rejected", nil), apperrors.CodeAuthError},
		{"decode", &apperrors.DecodeError{Reason: "segments"}, apperrors.CodeAuthError},
		{"transient", &apperrors.TransientError{Op: "refresh", Err: errors.New("dial")}, apperrors.CodeUnknownError},
		{"plain", errors.New("boom"), apperrors.CodeUnknownError},
		{
			"refresh wrapping credential",
			&apperrors.RefreshError{Attempts: 1, Err: apperrors.NewCredentialError(apperrors.CodeAuthError, "", nil)},
			apperrors.CodeAuthError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, apperrors.CodeOf(tt.err))
		})
	}
}

func TestClassification(t *testing.T) {
	transient := &apperrors.TransientError{Op: "refresh", Err: context.DeadlineExceeded}
	wrapped := fmt.Errorf("outer: %w", transient)

	require.True(t, apperrors.IsTransient(wrapped))
	require.True(t, apperrors.IsTransient(context.DeadlineExceeded))
	require.False(t, apperrors.IsCredential(wrapped))

	cred := apperrors.Wrapf(apperrors.NewCredentialError(apperrors.CodeAuthError, "", apperrors.ErrInvalidRefreshToken), "refresh")
	require.True(t, apperrors.IsCredential(cred))
	require.True(t, apperrors.Is(cred, apperrors.ErrInvalidRefreshToken))

	re := &apperrors.RefreshError{Attempts: 3, Err: transient}
	require.True(t, apperrors.IsTransient(re))
	require.Contains(t, re.Error(), "3 attempt(s)")

	var target *apperrors.RefreshError
	require.True(t, apperrors.As(fmt.Errorf("session: %w", re), &target))
	require.Equal(t, 3, target.Attempts)
}

func TestLocalizedMessages(t *testing.T) {
	require.Equal(t, "en", apperrors.Language(""))
	require.Equal(t, "en", apperrors.Language("en-US,en;q=0.9"))
	require.Equal(t, "th", apperrors.Language("th-TH,th;q=0.9,en;q=0.5"))
	require.Equal(t, "en", apperrors.Language("fr-FR"))

	require.Equal(t, "Incorrect username or password", apperrors.Message(apperrors.CodeInvalidCredentials, "en"))
	require.NotEqual(t,
		apperrors.Message(apperrors.CodeInvalidCredentials, "en"),
		apperrors.Message(apperrors.CodeInvalidCredentials, "th"))
	require.Equal(t, apperrors.Message(apperrors.CodeUnknownError, "en"), apperrors.Message("SOMETHING_ELSE", "de"))
}
