package config

// Route classes understood by the route guard
const (
	RouteClassPublic                    = "public"
	RouteClassPublicUnauthenticatedOnly = "public-unauthenticated"
	RouteClassProtected                 = "protected"
)

// RouteRule tags a path prefix with a route class
type RouteRule struct {
	Prefix string
	Class  string
}

type RouteConfig interface {
	GetLoginPath() string
	GetHomePath() string
	GetRouteRules() []RouteRule
}

type Routes struct{}

var _ RouteConfig = Routes{}

func (Routes) GetLoginPath() string {
	return GetEnv("LOGIN_PATH", "/login")
}

func (Routes) GetHomePath() string {
	return GetEnv("HOME_PATH", "/dashboard")
}

// GetRouteRules returns the route classification table. Paths matching no rule are protected.
func (r Routes) GetRouteRules() []RouteRule {
	var rules []RouteRule
	for _, p := range GetEnvList("PUBLIC_ROUTES", []string{"/help", "/healthz", "/metrics", "/oauth2/", "/.well-known/", "/auth/login", "/auth/logout", "/auth/retry", "/favicon.ico"}) {
		rules = append(rules, RouteRule{Prefix: p, Class: RouteClassPublic})
	}
	for _, p := range GetEnvList("LOGIN_ROUTES", []string{r.GetLoginPath()}) {
		rules = append(rules, RouteRule{Prefix: p, Class: RouteClassPublicUnauthenticatedOnly})
	}
	for _, p := range GetEnvList("PROTECTED_ROUTES", []string{r.GetHomePath(), "/api/"}) {
		rules = append(rules, RouteRule{Prefix: p, Class: RouteClassProtected})
	}
	return rules
}
