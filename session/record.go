package session

import (
	"errors"
	"time"

	apperrors "github.com/jrsteele09/go-admin-session/internal/errors"
	"github.com/jrsteele09/go-admin-session/token"
)

// ErrorFlagRefresh marks a record whose last refresh failed
const ErrorFlagRefresh = "RefreshAccessTokenError"

// Record is the persisted form of an authenticated session
type Record struct {
	Identity  token.Identity `json:"identity"`
	Tokens    token.Pair     `json:"tokens"`
	ErrorFlag string         `json:"error,omitempty"`
	Cause     string         `json:"error_description,omitempty"`
	Retried   bool           `json:"retried,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// RecordOf converts a state for storage. Unauthenticated has no record.
func RecordOf(state State, now time.Time) (Record, bool) {
	switch st := state.(type) {
	case Authenticated:
		return Record{Identity: st.Identity, Tokens: st.Pair, UpdatedAt: now}, true
	case AuthenticatedError:
		rec := Record{
			Identity:  st.Identity,
			Tokens:    st.Pair,
			ErrorFlag: ErrorFlagRefresh,
			Retried:   st.Retried,
			UpdatedAt: now,
		}
		if st.Cause != nil {
			rec.Cause = st.Cause.Error()
		}
		return rec, true
	default:
		return Record{}, false
	}
}

// State rebuilds the state a record was taken from. A record without tokens is Unauthenticated.
func (r Record) State() State {
	if r.Tokens.IsZero() {
		return Unauthenticated{}
	}
	if r.ErrorFlag == "" {
		return Authenticated{Identity: r.Identity, Pair: r.Tokens}
	}

	cause := apperrors.ErrSessionInvalid
	if r.Cause != "" {
		cause = errors.New(r.Cause)
	}
	return AuthenticatedError{Identity: r.Identity, Pair: r.Tokens, Cause: cause, Retried: r.Retried}
}
