// Package server is the admin front end: login and logout, the route guard in front of
// every request, the protected dashboard and session API, and optionally the built-in issuer.
package server

import (
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-admin-session/guard"
	"github.com/jrsteele09/go-admin-session/internal/config"
	"github.com/jrsteele09/go-admin-session/internal/metrics"
	"github.com/jrsteele09/go-admin-session/issuer"
	"github.com/jrsteele09/go-admin-session/session"
	"github.com/rs/zerolog/log"
)

type Server struct {
	env       string // Environment (e.g., "DEV", "PROD")
	mux       *http.ServeMux
	routes    []string
	handler   http.HandlerFunc
	config    config.Config
	sessions  *session.Manager
	guard     *guard.Guard
	issuer    *issuer.Service
	metrics   *metrics.Metrics
	loginPage *template.Template
}

type Option func(*Server)

// WithIssuer mounts the built-in issuer's token, revocation and discovery endpoints
func WithIssuer(i *issuer.Service) Option {
	return func(s *Server) {
		s.issuer = i
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

func New(config config.Config, sessions *session.Manager, g *guard.Guard, opts ...Option) *Server {
	s := &Server{
		env:       config.GetEnv(),
		mux:       http.NewServeMux(),
		config:    config,
		sessions:  sessions,
		guard:     g,
		loginPage: template.Must(template.New("login").Parse(loginPageHTML)),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.initRoutes()
	s.logRoutes()

	// the guard sees every request, including unmatched paths
	s.handler = ChainMiddleware(s.mux.ServeHTTP, s.HTMLMiddleWare(s.GuardMiddleware)...)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	log.Info().Msgf("[%-19s] %s", colourMethod(method), path)
}

func colourMethod(method string) string {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		return color + paddedMethod + ResetColor
	}
	return Gray + paddedMethod + ResetColor
}

// Helper function to determine the scheme (http/https)
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}
