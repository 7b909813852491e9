package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-admin-session/guard"
	apperrors "github.com/jrsteele09/go-admin-session/internal/errors"
	"github.com/jrsteele09/go-admin-session/session"
	"github.com/rs/zerolog/log"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ContextKeySession stores the caller's *session.Session, if any
	ContextKeySession ContextKey = "session"
	// ContextKeyState stores the session.State the guard decided on
	ContextKeyState ContextKey = "session_state"
)

// GuardMiddleware classifies the path, checks the caller's session (refreshing it when
// due) and applies the guard decision. Public paths skip the session lookup.
func (s *Server) GuardMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next(w, r)
			return
		}

		var (
			sess  *session.Session
			state session.State = session.Unauthenticated{}
		)
		if s.guard.Classify(r.URL.Path) != guard.Public {
			sess, state = s.requestAccess(w, r)
		}

		decision := s.guard.Authorize(guard.Request{
			Path:     r.URL.Path,
			ReturnTo: r.URL.Query().Get(guard.ReturnToParam),
		}, state)

		switch decision.Kind {
		case guard.RedirectToLogin:
			if isAPIRequest(r) {
				lang := apperrors.Language(r.Header.Get("Accept-Language"))
				writeJSON(w, http.StatusUnauthorized, errorResponse{
					Code:     apperrors.CodeAuthError,
					Message:  apperrors.Message(apperrors.CodeAuthError, lang),
					Redirect: decision.Location,
				})
				return
			}
			redirectSuccess(w, r, decision.Location)
			return
		case guard.RedirectToHome:
			redirectSuccess(w, r, decision.Location)
			return
		}

		ctx := context.WithValue(r.Context(), ContextKeyState, state)
		if sess != nil {
			ctx = context.WithValue(ctx, ContextKeySession, sess)
		}
		next(w, r.WithContext(ctx))
	}
}

// requestAccess resolves the session cookie and runs the access check. A cookie naming
// no live or stored session is cleared.
func (s *Server) requestAccess(w http.ResponseWriter, r *http.Request) (*session.Session, session.State) {
	sess, err := s.sessionFromCookie(r)
	if err != nil {
		if !errors.Is(err, http.ErrNoCookie) {
			if !errors.Is(err, apperrors.ErrSessionNotFound) {
				log.Err(err).Msg("Failed to load session")
			}
			s.clearLoginSessionCookie(w, r)
		}
		return nil, session.Unauthenticated{}
	}

	state, err := sess.RequestAccess(r.Context())
	if err != nil {
		log.Debug().Err(err).Str("session_id", sess.ID()).Msg("session not usable")
		// a failed access check never grants access
		if session.IsAuthenticated(state) {
			state = session.Unauthenticated{}
		}
	}
	return sess, state
}

func (s *Server) sessionFromCookie(r *http.Request) (*session.Session, error) {
	cookie, err := r.Cookie(s.config.GetSessionCookieName())
	if err != nil {
		return nil, err
	}
	if cookie.Value == "" {
		return nil, http.ErrNoCookie
	}
	return s.sessions.Get(r.Context(), cookie.Value)
}

// StateFromContext returns the state the guard saw for this request
func StateFromContext(ctx context.Context) session.State {
	if state, ok := ctx.Value(ContextKeyState).(session.State); ok {
		return state
	}
	return session.Unauthenticated{}
}

func SessionFromContext(ctx context.Context) (*session.Session, bool) {
	sess, ok := ctx.Value(ContextKeySession).(*session.Session)
	return sess, ok
}

func isAPIRequest(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, "/api/") || strings.Contains(r.Header.Get("Accept"), "application/json")
}
