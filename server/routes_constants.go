package server

const (
	// Authentication
	RouteAuthLogin  = "/auth/login"
	RouteAuthLogout = "/auth/logout"
	RouteAuthRetry  = "/auth/retry"

	// Protected
	RouteAPISession = "/api/session"

	// Public
	RouteHelp    = "/help"
	RouteHealth  = "/healthz"
	RouteMetrics = "/metrics"
)
