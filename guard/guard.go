// Package guard decides whether a navigation may proceed given the caller's session state.
package guard

import (
	"net/url"
	"strings"

	"github.com/jrsteele09/go-admin-session/internal/metrics"
	"github.com/jrsteele09/go-admin-session/session"
)

// ReturnToParam is the query parameter carrying the post-login return path
const ReturnToParam = "returnTo"

type Kind int

const (
	Allow Kind = iota
	RedirectToLogin
	RedirectToHome
)

func (k Kind) String() string {
	switch k {
	case RedirectToLogin:
		return "redirect_login"
	case RedirectToHome:
		return "redirect_home"
	default:
		return "allow"
	}
}

// Decision is the outcome of Authorize. Location is set for redirects; ReturnTo is the
// path attached to a login redirect.
type Decision struct {
	Kind     Kind
	Location string
	ReturnTo string
}

// Request is the navigation being checked. ReturnTo is an optional caller-supplied
// destination honoured when a signed-in visitor hits the login page.
type Request struct {
	Path     string
	ReturnTo string
}

type Guard struct {
	table     *Table
	loginPath string
	homePath  string
	metrics   *metrics.Metrics
}

type Option func(*Guard)

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Guard) {
		g.metrics = m
	}
}

func New(table *Table, loginPath, homePath string, opts ...Option) *Guard {
	g := &Guard{
		table:     table,
		loginPath: loginPath,
		homePath:  homePath,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Guard) Classify(path string) Class {
	return g.table.Classify(path)
}

// Authorize applies the rules in order: signed-in visitors are sent away from login-type
// pages, public pages are allowed, anyone not fully authenticated is sent to login with
// the original path, everyone else is allowed. It depends only on its arguments.
func (g *Guard) Authorize(req Request, state session.State) Decision {
	d := g.decide(req, state)
	g.metrics.GuardDecision(d.Kind.String())
	return d
}

func (g *Guard) decide(req Request, state session.State) Decision {
	class := g.table.Classify(req.Path)
	authenticated := session.IsAuthenticated(state)

	switch {
	case class == PublicUnauthenticatedOnly && authenticated:
		return Decision{Kind: RedirectToHome, Location: g.ReturnTarget(req.ReturnTo)}
	case class != Protected:
		return Decision{Kind: Allow}
	case !authenticated:
		return Decision{
			Kind:     RedirectToLogin,
			Location: g.LoginURL(req.Path),
			ReturnTo: req.Path,
		}
	default:
		return Decision{Kind: Allow}
	}
}

// LoginURL is the login path with returnTo attached
func (g *Guard) LoginURL(returnTo string) string {
	if SanitizeReturnTo(returnTo) == "" {
		return g.loginPath
	}
	return g.loginPath + "?" + url.Values{ReturnToParam: {returnTo}}.Encode()
}

// ReturnTarget is where a signed-in visitor goes: a safe returnTo that is not itself
// a login-type page, else the home path
func (g *Guard) ReturnTarget(returnTo string) string {
	target := SanitizeReturnTo(returnTo)
	if target == "" {
		return g.homePath
	}
	u, err := url.Parse(target)
	if err != nil || g.table.Classify(u.Path) == PublicUnauthenticatedOnly {
		return g.homePath
	}
	return target
}

// SanitizeReturnTo returns raw when it is a same-origin absolute path, else ""
func SanitizeReturnTo(raw string) string {
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.Contains(raw, `\`) {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" || u.Host != "" || u.User != nil {
		return ""
	}
	return raw
}
