package guard_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/go-admin-session/guard"
	"github.com/jrsteele09/go-admin-session/internal/config"
	"github.com/jrsteele09/go-admin-session/session"
	"github.com/jrsteele09/go-admin-session/token"
	"github.com/stretchr/testify/require"
)

var (
	validPair = token.Pair{AccessToken: "a", RefreshToken: "r", AccessTokenExpiresAt: time.Now().Add(time.Hour)}

	authenticated   = session.Authenticated{Identity: token.Identity{UserID: "user-1"}, Pair: validPair}
	errored         = session.AuthenticatedError{Identity: token.Identity{UserID: "user-1"}, Pair: validPair}
	unauthenticated = session.Unauthenticated{}
)

func newGuard(t *testing.T) *guard.Guard {
	t.Helper()
	table, err := guard.TableFromConfig([]config.RouteRule{
		{Prefix: "/help", Class: config.RouteClassPublic},
		{Prefix: "/oauth2/", Class: config.RouteClassPublic},
		{Prefix: "/login", Class: config.RouteClassPublicUnauthenticatedOnly},
		{Prefix: "/dashboard", Class: config.RouteClassProtected},
		{Prefix: "/dashboard/public", Class: config.RouteClassPublic},
	})
	require.NoError(t, err)
	return guard.New(table, "/login", "/dashboard")
}

func TestClassify(t *testing.T) {
	g := newGuard(t)

	tests := []struct {
		path string
		want guard.Class
	}{
		{"/help", guard.Public},
		{"/help/faq", guard.Public},
		{"/helpdesk", guard.Protected},
		{"/oauth2/token", guard.Public},
		{"/login", guard.PublicUnauthenticatedOnly},
		{"/dashboard", guard.Protected},
		{"/dashboard/orders", guard.Protected},
		{"/dashboard/public/status", guard.Public},
		{"/", guard.Protected},
		{"/unknown", guard.Protected},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			require.Equal(t, tt.want, g.Classify(tt.path))
		})
	}
}

func TestAuthorize(t *testing.T) {
	g := newGuard(t)

	tests := []struct {
		name  string
		req   guard.Request
		state session.State
		want  guard.Decision
	}{
		{"login while authenticated goes home", guard.Request{Path: "/login"}, authenticated,
			guard.Decision{Kind: guard.RedirectToHome, Location: "/dashboard"}},
		{"login while authenticated honours returnTo", guard.Request{Path: "/login", ReturnTo: "/dashboard/orders?page=2"}, authenticated,
			guard.Decision{Kind: guard.RedirectToHome, Location: "/dashboard/orders?page=2"}},
		{"login ignores offsite returnTo", guard.Request{Path: "/login", ReturnTo: "https://evil.example.com"}, authenticated,
			guard.Decision{Kind: guard.RedirectToHome, Location: "/dashboard"}},
		{"login ignores returnTo back to login", guard.Request{Path: "/login", ReturnTo: "/login"}, authenticated,
			guard.Decision{Kind: guard.RedirectToHome, Location: "/dashboard"}},
		{"login while unauthenticated", guard.Request{Path: "/login"}, unauthenticated,
			guard.Decision{Kind: guard.Allow}},
		{"login while errored", guard.Request{Path: "/login"}, errored,
			guard.Decision{Kind: guard.Allow}},
		{"help unauthenticated", guard.Request{Path: "/help"}, unauthenticated, guard.Decision{Kind: guard.Allow}},
		{"help authenticated", guard.Request{Path: "/help"}, authenticated, guard.Decision{Kind: guard.Allow}},
		{"help errored", guard.Request{Path: "/help"}, errored, guard.Decision{Kind: guard.Allow}},
		{"dashboard unauthenticated", guard.Request{Path: "/dashboard"}, unauthenticated,
			guard.Decision{Kind: guard.RedirectToLogin, Location: "/login?returnTo=%2Fdashboard", ReturnTo: "/dashboard"}},
		{"dashboard errored", guard.Request{Path: "/dashboard"}, errored,
			guard.Decision{Kind: guard.RedirectToLogin, Location: "/login?returnTo=%2Fdashboard", ReturnTo: "/dashboard"}},
		{"dashboard authenticated", guard.Request{Path: "/dashboard"}, authenticated, guard.Decision{Kind: guard.Allow}},
		{"nil state is unauthenticated", guard.Request{Path: "/dashboard/orders"}, nil,
			guard.Decision{Kind: guard.RedirectToLogin, Location: "/login?returnTo=%2Fdashboard%2Forders", ReturnTo: "/dashboard/orders"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first := g.Authorize(tt.req, tt.state)
			require.Equal(t, tt.want, first)
			require.Equal(t, first, g.Authorize(tt.req, tt.state))
		})
	}
}

func TestSanitizeReturnTo(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"/dashboard", "/dashboard"},
		{"/orders?id=7#top", "/orders?id=7#top"},
		{"", ""},
		{"dashboard", ""},
		{"//evil.example.com/x", ""},
		{`/\evil.example.com`, ""},
		{"https://evil.example.com/", ""},
		{"javascript:alert(1)", ""},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			require.Equal(t, tt.want, guard.SanitizeReturnTo(tt.raw))
		})
	}
}

func TestTableFromConfigRejectsUnknownClass(t *testing.T) {
	_, err := guard.TableFromConfig([]config.RouteRule{{Prefix: "/x", Class: "private"}})
	require.Error(t, err)
}

func TestDefaultRouteTable(t *testing.T) {
	cfg := config.New()
	table, err := guard.TableFromConfig(cfg.GetRouteRules())
	require.NoError(t, err)

	require.Equal(t, guard.PublicUnauthenticatedOnly, table.Classify(cfg.GetLoginPath()))
	require.Equal(t, guard.Protected, table.Classify(cfg.GetHomePath()))
	require.Equal(t, guard.Public, table.Classify("/help"))
	require.Equal(t, guard.Public, table.Classify("/.well-known/openid-configuration"))
	require.Equal(t, guard.Protected, table.Classify("/api/session"))
}
