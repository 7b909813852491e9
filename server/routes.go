package server

import (
	"net/http"

	"github.com/jrsteele09/go-admin-session/issuer"
)

func (s *Server) initRoutes() {
	// LOGIN
	s.RegisterRouteFunc("GET "+s.config.GetLoginPath(), s.LoginPageHandler())
	s.RegisterRouteFunc("POST "+RouteAuthLogin, s.LoginSubmissionHandler())
	s.RegisterRouteFunc("POST "+RouteAuthLogout, s.LogoutHandler())
	s.RegisterRouteFunc("POST "+RouteAuthRetry, s.RetryHandler())

	// Protected
	s.RegisterRouteFunc("GET "+s.config.GetHomePath(), s.DashboardHandler())
	s.RegisterRouteHandler("GET "+RouteAPISession, ChainMiddleware(s.SessionInfoHandler(), s.APIMiddleware()...))

	// Public
	s.RegisterRouteFunc("GET "+RouteHelp, s.HelpHandler())
	s.RegisterRouteFunc("GET "+RouteHealth, s.HealthHandler())
	s.RegisterRouteHandler("GET "+RouteMetrics, s.metrics.Handler())

	// Built-in issuer
	if s.issuer != nil {
		s.RegisterRouteHandler("GET "+issuer.RouteDiscovery, ChainMiddleware(s.issuer.DiscoveryHandler(), s.APIMiddleware()...))
		s.RegisterRouteHandler("POST "+issuer.RouteToken, ChainMiddleware(s.issuer.TokenHandler(), s.APIMiddleware()...))
		s.RegisterRouteHandler("POST "+issuer.RouteRevoke, ChainMiddleware(s.issuer.RevokeHandler(), s.APIMiddleware()...))
	}

	// CORS preflight for the JSON endpoints
	s.RegisterRouteHandler("OPTIONS /api/", ChainMiddleware(noContent, s.APIMiddleware()...))
	s.RegisterRouteHandler("OPTIONS /oauth2/", ChainMiddleware(noContent, s.APIMiddleware()...))

	s.RegisterRouteFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		redirectSuccess(w, r, s.config.GetHomePath())
	})
}

func noContent(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}
