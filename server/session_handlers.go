package server

import (
	"fmt"
	"net/http"
	"time"

	apperrors "github.com/jrsteele09/go-admin-session/internal/errors"
	"github.com/jrsteele09/go-admin-session/session"
	"github.com/jrsteele09/go-admin-session/token"
	"github.com/rs/zerolog/log"
)

// sessionResponse describes a session without exposing its tokens
type sessionResponse struct {
	State                string          `json:"state"`
	User                 *token.Identity `json:"user,omitempty"`
	AccessTokenExpiresAt *time.Time      `json:"access_token_expires_at,omitempty"`
	Error                string          `json:"error,omitempty"`
}

func newSessionResponse(state session.State) sessionResponse {
	resp := sessionResponse{State: state.Name()}
	switch st := state.(type) {
	case session.Authenticated:
		resp.User = &st.Identity
		resp.AccessTokenExpiresAt = &st.Pair.AccessTokenExpiresAt
	case session.AuthenticatedError:
		resp.User = &st.Identity
		resp.AccessTokenExpiresAt = &st.Pair.AccessTokenExpiresAt
		resp.Error = session.ErrorFlagRefresh
	}
	return resp
}

// SessionInfoHandler reports the caller's session (GET /api/session)
func (s *Server) SessionInfoHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, newSessionResponse(StateFromContext(r.Context())))
	}
}

// RetryHandler makes the single manual refresh attempt allowed after a failed
// refresh (POST /auth/retry)
func (s *Server) RetryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lang := apperrors.Language(r.Header.Get("Accept-Language"))

		sess, err := s.sessionFromCookie(r)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorResponse{
				Code:     apperrors.CodeAuthError,
				Message:  apperrors.Message(apperrors.CodeAuthError, lang),
				Redirect: s.config.GetLoginPath(),
			})
			return
		}

		state, err := sess.Retry(r.Context())
		if err != nil {
			log.Debug().Err(err).Str("session_id", sess.ID()).Msg("manual refresh retry failed")
		}
		if !session.IsAuthenticated(state) {
			writeJSON(w, http.StatusUnauthorized, errorResponse{
				Code:     apperrors.CodeAuthError,
				Message:  apperrors.Message(apperrors.CodeAuthError, lang),
				Redirect: s.guard.LoginURL(s.config.GetHomePath()),
			})
			return
		}
		writeJSON(w, http.StatusOK, newSessionResponse(state))
	}
}

// DashboardHandler is the protected landing page (GET /dashboard)
func (s *Server) DashboardHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, _ := session.IdentityOf(StateFromContext(r.Context()))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		fmt.Fprintf(w, "%s\nSigned in as %s (%s)\n", s.config.GetAppName(), identity.Username, identity.Role)
	}
}

// HelpHandler is public (GET /help)
func (s *Server) HelpHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintf(w, "%s\nSign in at %s. Contact your administrator if your account is not active.\n", s.config.GetAppName(), s.config.GetLoginPath())
	}
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
