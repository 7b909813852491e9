package server

import (
	"encoding/json"
	"mime"
	"net/http"

	"github.com/jrsteele09/go-admin-session/exchange"
	"github.com/jrsteele09/go-admin-session/guard"
	apperrors "github.com/jrsteele09/go-admin-session/internal/errors"
	"github.com/jrsteele09/go-admin-session/session"
	"github.com/jrsteele09/go-admin-session/token"
	"github.com/rs/zerolog/log"
)

const loginPageHTML = `<!DOCTYPE html>
<html lang="{{.Lang}}">
<head><meta charset="utf-8"><title>{{.AppName}} sign in</title></head>
<body>
<form method="post" action="{{.Action}}">
{{if .Error}}<p role="alert">{{.Error}}</p>{{end}}
<input type="hidden" name="returnTo" value="{{.ReturnTo}}">
<label>Username <input name="username" value="{{.Username}}" autocomplete="username" required></label>
<label>Password <input name="password" type="password" autocomplete="current-password" required></label>
<button type="submit">Sign in</button>
</form>
</body>
</html>
`

// LoginPageData contains data for rendering the login page
type LoginPageData struct {
	AppName  string
	Lang     string
	Action   string
	ReturnTo string
	Username string // Preserve username on error
	Error    string
}

// loginRequest is the POST /auth/login body, JSON or form encoded
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	ReturnTo string `json:"returnTo"`
}

type loginResponse struct {
	Redirect string          `json:"redirect"`
	User     token.Identity  `json:"user"`
	Session  sessionResponse `json:"session"`
}

// LoginPageHandler displays the login form (GET /login)
func (s *Server) LoginPageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.renderLoginPage(w, r, http.StatusOK, LoginPageData{
			ReturnTo: guard.SanitizeReturnTo(r.URL.Query().Get(guard.ReturnToParam)),
		})
	}
}

// LoginSubmissionHandler runs the login exchange (POST /auth/login). Credential failures
// answer 401 with a localized message, transient failures 503.
func (s *Server) LoginSubmissionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		asJSON := isJSONRequest(r)
		lang := apperrors.Language(r.Header.Get("Accept-Language"))

		req, err := parseLoginRequest(r, asJSON)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Code: apperrors.CodeInvalidCredentials, Message: apperrors.Message(apperrors.CodeInvalidCredentials, lang)})
			return
		}

		// every sign-in gets a fresh session ID; the previous session ends once it succeeds
		sess := s.sessions.New()
		state, err := sess.Login(r.Context(), exchange.Credentials{Username: req.Username, Password: req.Password})
		if err != nil {
			status, code := http.StatusUnauthorized, apperrors.CodeOf(err)
			if apperrors.IsTransient(err) || !apperrors.IsCredential(err) {
				status, code = http.StatusServiceUnavailable, apperrors.CodeUnknownError
				log.Err(err).Msg("Login exchange failed")
			}
			message := apperrors.Message(code, lang)

			if asJSON {
				writeJSON(w, status, errorResponse{Code: code, Message: message})
				return
			}
			s.renderLoginPage(w, r, status, LoginPageData{
				ReturnTo: guard.SanitizeReturnTo(req.ReturnTo),
				Username: req.Username,
				Error:    message,
			})
			return
		}

		if previous, err := s.sessionFromCookie(r); err == nil {
			if err := previous.Logout(r.Context()); err != nil {
				log.Warn().Err(err).Str("session_id", previous.ID()).Msg("Previous session ended without remote revocation")
			}
		}
		s.SetLoginSessionCookie(w, sess.ID(), r)
		target := s.guard.ReturnTarget(req.ReturnTo)

		if asJSON {
			identity, _ := session.IdentityOf(state)
			writeJSON(w, http.StatusOK, loginResponse{
				Redirect: target,
				User:     identity,
				Session:  newSessionResponse(state),
			})
			return
		}
		redirectSuccess(w, r, target)
	}
}

// LogoutHandler clears the session and its cookie (POST /auth/logout)
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if sess, err := s.sessionFromCookie(r); err == nil {
			if err := sess.Logout(r.Context()); err != nil {
				log.Warn().Err(err).Str("session_id", sess.ID()).Msg("Logout completed without remote revocation")
			}
		}
		s.clearLoginSessionCookie(w, r)

		if isJSONRequest(r) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		redirectSuccess(w, r, s.config.GetLoginPath())
	}
}

func (s *Server) renderLoginPage(w http.ResponseWriter, r *http.Request, status int, data LoginPageData) {
	data.AppName = s.config.GetAppName()
	data.Lang = apperrors.Language(r.Header.Get("Accept-Language"))
	data.Action = RouteAuthLogin

	w.Header().Set("Content-Type", contentTypeHTML)
	w.WriteHeader(status)
	if err := s.loginPage.Execute(w, data); err != nil {
		log.Err(err).Msg("Failed to render login page")
	}
}

func parseLoginRequest(r *http.Request, asJSON bool) (loginRequest, error) {
	var req loginRequest
	if asJSON {
		if err := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<16)).Decode(&req); err != nil {
			return loginRequest{}, err
		}
		return req, nil
	}
	if err := r.ParseForm(); err != nil {
		return loginRequest{}, err
	}
	req.Username = r.PostFormValue("username")
	req.Password = r.PostFormValue("password")
	req.ReturnTo = r.PostFormValue(guard.ReturnToParam)
	return req, nil
}

func isJSONRequest(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}
