package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-admin-session/exchange"
	"github.com/jrsteele09/go-admin-session/exchange/exchangefake"
	"github.com/jrsteele09/go-admin-session/guard"
	"github.com/jrsteele09/go-admin-session/internal/config"
	apperrors "github.com/jrsteele09/go-admin-session/internal/errors"
	"github.com/jrsteele09/go-admin-session/internal/metrics"
	"github.com/jrsteele09/go-admin-session/issuer"
	refreshrepofake "github.com/jrsteele09/go-admin-session/issuer/repofake"
	"github.com/jrsteele09/go-admin-session/server"
	"github.com/jrsteele09/go-admin-session/session"
	"github.com/jrsteele09/go-admin-session/token"
	"github.com/jrsteele09/go-admin-session/token/refresh"
	fakeuserrepo "github.com/jrsteele09/go-admin-session/users/repofake"
	"github.com/stretchr/testify/require"
)

const testPassword = "Adm1nPassword"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testFixture struct {
	clock  *testClock
	server *httptest.Server
	client *http.Client
}

// setupTestFixture serves the front end with the given exchanger, or the built-in issuer when nil
func setupTestFixture(t *testing.T, exchanger exchange.Exchanger) *testFixture {
	t.Helper()

	f := &testFixture{clock: &testClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}}
	cfg := config.New()

	var opts []server.Option
	if exchanger == nil {
		userRepo := fakeuserrepo.NewFakeUserRepo()
		_, err := issuer.EnsureAdmin(userRepo, "admin", testPassword)
		require.NoError(t, err)
		iss := issuer.New(userRepo, refreshrepofake.NewFakeRefreshTokenRepo(), token.NewHMACSigner("secret"), "http://issuer.test", issuer.WithNowFunc(f.clock.Now))
		exchanger = iss
		opts = append(opts, server.WithIssuer(iss))
	}
	opts = append(opts, server.WithMetrics(metrics.New()))

	policy := token.NewPolicy(token.WithNowFunc(f.clock.Now))
	executor := refresh.NewExecutor(exchanger, policy, refresh.WithBaseDelay(time.Millisecond), refresh.WithNowFunc(f.clock.Now))
	manager := session.NewManager(session.NewMemoryStore(0), exchanger, executor, policy)

	table, err := guard.TableFromConfig(cfg.GetRouteRules())
	require.NoError(t, err)
	g := guard.New(table, cfg.GetLoginPath(), cfg.GetHomePath())

	f.server = httptest.NewServer(server.New(cfg, manager, g, opts...))
	t.Cleanup(f.server.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	f.client = &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return f
}

func (f *testFixture) do(t *testing.T, method, path string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.server.URL+path, body)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := f.client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (f *testFixture) get(t *testing.T, path string) *http.Response {
	t.Helper()
	return f.do(t, http.MethodGet, path, nil, nil)
}

func (f *testFixture) loginJSON(t *testing.T, username, password string, headers map[string]string) *http.Response {
	t.Helper()
	body, err := json.Marshal(map[string]string{"username": username, "password": password})
	require.NoError(t, err)
	h := map[string]string{"Content-Type": "application/json"}
	for k, v := range headers {
		h[k] = v
	}
	return f.do(t, http.MethodPost, server.RouteAuthLogin, strings.NewReader(string(body)), h)
}

type errorBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Redirect string `json:"redirect"`
}

type sessionBody struct {
	State                string          `json:"state"`
	User                 *token.Identity `json:"user"`
	AccessTokenExpiresAt time.Time       `json:"access_token_expires_at"`
	Error                string          `json:"error"`
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestUnauthenticatedRedirects(t *testing.T) {
	f := setupTestFixture(t, nil)

	resp := f.get(t, "/dashboard")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/login?returnTo=%2Fdashboard", resp.Header.Get("Location"))

	resp = f.do(t, http.MethodGet, "/dashboard", nil, map[string]string{"HX-Request": "true"})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, "/login?returnTo=%2Fdashboard", resp.Header.Get("HX-Redirect"))

	resp = f.get(t, server.RouteAPISession)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	body := decode[errorBody](t, resp)
	require.Equal(t, string(apperrors.CodeAuthError), body.Code)
	require.Equal(t, "/login?returnTo=%2Fapi%2Fsession", body.Redirect)
}

func TestPublicRoutes(t *testing.T) {
	f := setupTestFixture(t, nil)

	for _, path := range []string{server.RouteHelp, server.RouteHealth, server.RouteMetrics, "/login", issuer.RouteDiscovery} {
		t.Run(path, func(t *testing.T) {
			resp := f.get(t, path)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			require.Equal(t, "SAMEORIGIN", resp.Header.Get("X-Frame-Options"))
		})
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	f := setupTestFixture(t, nil)

	resp := f.loginJSON(t, "admin", "wrong", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	body := decode[errorBody](t, resp)
	require.Equal(t, string(apperrors.CodeInvalidCredentials), body.Code)
	require.Equal(t, "Incorrect username or password", body.Message)

	resp = f.loginJSON(t, "admin", "wrong", map[string]string{"Accept-Language": "th-TH,th;q=0.9"})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, apperrors.Message(apperrors.CodeInvalidCredentials, "th"), decode[errorBody](t, resp).Message)

	// still signed out
	require.Equal(t, http.StatusSeeOther, f.get(t, "/dashboard").StatusCode)
}

func TestLoginTransientFailure(t *testing.T) {
	fake := exchangefake.NewFakeExchanger()
	fake.LoginFunc = func(ctx context.Context, creds exchange.Credentials) (exchange.Grant, error) {
		return exchange.Grant{}, &apperrors.TransientError{Op: "login", Err: errors.New("connection refused")}
	}
	f := setupTestFixture(t, fake)

	resp := f.loginJSON(t, "admin", testPassword, nil)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	require.Equal(t, string(apperrors.CodeUnknownError), decode[errorBody](t, resp).Code)
}

func TestLoginSessionLifecycle(t *testing.T) {
	f := setupTestFixture(t, nil)

	resp := f.loginJSON(t, "admin", testPassword, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	login := decode[struct {
		Redirect string         `json:"redirect"`
		User     token.Identity `json:"user"`
	}](t, resp)
	require.Equal(t, "/dashboard", login.Redirect)
	require.Equal(t, "admin", login.User.Username)

	resp = f.get(t, "/dashboard")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(page), "Signed in as admin")

	resp = f.get(t, server.RouteAPISession)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	info := decode[sessionBody](t, resp)
	require.Equal(t, session.StateAuthenticated, info.State)
	require.WithinDuration(t, f.clock.Now().Add(issuer.DefaultAccessTokenExpiry), info.AccessTokenExpiresAt, 0)

	// signed-in visitors are sent away from the login page
	resp = f.get(t, "/login")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/dashboard", resp.Header.Get("Location"))

	resp = f.get(t, "/login?returnTo=%2Fapi%2Fsession")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/api/session", resp.Header.Get("Location"))

	resp = f.do(t, http.MethodPost, server.RouteAuthLogout, nil, nil)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/login", resp.Header.Get("Location"))

	require.Equal(t, http.StatusSeeOther, f.get(t, "/dashboard").StatusCode)
}

func TestFormLoginHonoursReturnTo(t *testing.T) {
	f := setupTestFixture(t, nil)

	form := url.Values{"username": {"admin"}, "password": {testPassword}, "returnTo": {"/api/session"}}
	resp := f.do(t, http.MethodPost, server.RouteAuthLogin, strings.NewReader(form.Encode()), map[string]string{"Content-Type": "application/x-www-form-urlencoded"})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/api/session", resp.Header.Get("Location"))

	form.Set("returnTo", "https://evil.example.com")
	resp = f.do(t, http.MethodPost, server.RouteAuthLogin, strings.NewReader(form.Encode()), map[string]string{"Content-Type": "application/x-www-form-urlencoded"})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/dashboard", resp.Header.Get("Location"))

	form.Set("password", "wrong")
	resp = f.do(t, http.MethodPost, server.RouteAuthLogin, strings.NewReader(form.Encode()), map[string]string{"Content-Type": "application/x-www-form-urlencoded"})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	page, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(page), "Incorrect username or password")
}

func TestGuardRefreshesExpiringAccessToken(t *testing.T) {
	f := setupTestFixture(t, nil)
	require.Equal(t, http.StatusOK, f.loginJSON(t, "admin", testPassword, nil).StatusCode)

	f.clock.Advance(9 * time.Minute)
	resp := f.get(t, server.RouteAPISession)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	info := decode[sessionBody](t, resp)
	require.Equal(t, session.StateAuthenticated, info.State)
	require.WithinDuration(t, f.clock.Now().Add(issuer.DefaultAccessTokenExpiry), info.AccessTokenExpiresAt, 0)
}

func TestRefreshFailureForcesLogin(t *testing.T) {
	f := setupTestFixture(t, nil)
	require.Equal(t, http.StatusOK, f.loginJSON(t, "admin", testPassword, nil).StatusCode)

	// the refresh token itself has expired
	f.clock.Advance(issuer.DefaultRefreshTokenExpiry + time.Hour)

	resp := f.get(t, "/dashboard")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/login?returnTo=%2Fdashboard", resp.Header.Get("Location"))

	// the error state lets the login page through
	require.Equal(t, http.StatusOK, f.get(t, "/login").StatusCode)

	resp = f.do(t, http.MethodPost, server.RouteAuthRetry, nil, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// signing in again starts a fresh session
	require.Equal(t, http.StatusOK, f.loginJSON(t, "admin", testPassword, nil).StatusCode)
	require.Equal(t, http.StatusOK, f.get(t, "/dashboard").StatusCode)
}

func TestStaleCookieIsCleared(t *testing.T) {
	f := setupTestFixture(t, nil)

	u, err := url.Parse(f.server.URL)
	require.NoError(t, err)
	f.client.Jar.SetCookies(u, []*http.Cookie{{Name: config.New().GetSessionCookieName(), Value: "unknown", Path: "/"}})

	resp := f.get(t, "/dashboard")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Empty(t, f.client.Jar.Cookies(u))
}

func TestIssuerEndpointsMounted(t *testing.T) {
	f := setupTestFixture(t, nil)

	form := url.Values{"grant_type": {"password"}, "username": {"admin"}, "password": {testPassword}}
	resp := f.do(t, http.MethodPost, issuer.RouteToken, strings.NewReader(form.Encode()), map[string]string{"Content-Type": "application/x-www-form-urlencoded"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRefreshTimeoutDeniesAccess(t *testing.T) {
	fake := exchangefake.NewFakeExchanger()
	f := setupTestFixture(t, fake)

	userRepo := fakeuserrepo.NewFakeUserRepo()
	_, err := issuer.EnsureAdmin(userRepo, "admin", testPassword)
	require.NoError(t, err)
	iss := issuer.New(userRepo, refreshrepofake.NewFakeRefreshTokenRepo(), token.NewHMACSigner("secret"), "http://issuer.test", issuer.WithNowFunc(f.clock.Now))

	release := make(chan struct{})
	fake.LoginFunc = iss.Login
	fake.RefreshFunc = func(ctx context.Context, refreshToken string) (exchange.Grant, error) {
		<-release
		return iss.Refresh(ctx, refreshToken)
	}

	require.Equal(t, http.StatusOK, f.loginJSON(t, "admin", testPassword, nil).StatusCode)

	t.Setenv("REQUEST_TIMEOUT", "50ms")
	f.clock.Advance(time.Hour)

	// the request gives up while the refresh is still running
	resp := f.get(t, "/dashboard")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/login?returnTo=%2Fdashboard", resp.Header.Get("Location"))
	require.Equal(t, 1, fake.RefreshCalls())

	close(release)
	require.Eventually(t, func() bool {
		resp, err := f.client.Get(f.server.URL + "/dashboard")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, 1, fake.RefreshCalls())
}

func (f *testFixture) sessionCookie(t *testing.T) string {
	t.Helper()
	u, err := url.Parse(f.server.URL)
	require.NoError(t, err)
	for _, c := range f.client.Jar.Cookies(u) {
		if c.Name == config.New().GetSessionCookieName() {
			return c.Value
		}
	}
	return ""
}

func TestLoginRotatesSessionID(t *testing.T) {
	f := setupTestFixture(t, nil)

	// a session ID planted before sign-in is not reused
	u, err := url.Parse(f.server.URL)
	require.NoError(t, err)
	f.client.Jar.SetCookies(u, []*http.Cookie{{Name: config.New().GetSessionCookieName(), Value: "planted", Path: "/"}})

	require.Equal(t, http.StatusOK, f.loginJSON(t, "admin", testPassword, nil).StatusCode)
	first := f.sessionCookie(t)
	require.NotEmpty(t, first)
	require.NotEqual(t, "planted", first)

	require.Equal(t, http.StatusOK, f.loginJSON(t, "admin", testPassword, nil).StatusCode)
	second := f.sessionCookie(t)
	require.NotEmpty(t, second)
	require.NotEqual(t, first, second)
	require.Equal(t, http.StatusOK, f.get(t, "/dashboard").StatusCode)

	// the replaced session is gone
	f.client.Jar.SetCookies(u, []*http.Cookie{{Name: config.New().GetSessionCookieName(), Value: first, Path: "/"}})
	require.Equal(t, http.StatusSeeOther, f.get(t, "/dashboard").StatusCode)
}

func TestLogoutRequiresPost(t *testing.T) {
	f := setupTestFixture(t, nil)
	require.Equal(t, http.StatusOK, f.loginJSON(t, "admin", testPassword, nil).StatusCode)

	require.Equal(t, http.StatusMethodNotAllowed, f.get(t, server.RouteAuthLogout).StatusCode)
	require.Equal(t, http.StatusOK, f.get(t, "/dashboard").StatusCode)
}
