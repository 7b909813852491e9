package session

import (
	"github.com/jrsteele09/go-admin-session/token"
)

// State names, used in logs, metrics and the session API
const (
	StateUnauthenticated    = "unauthenticated"
	StateAuthenticated      = "authenticated"
	StateAuthenticatedError = "authenticated_error"
)

// State is one of Unauthenticated, Authenticated or AuthenticatedError
type State interface {
	Name() string
	isState()
}

// Unauthenticated holds no tokens
type Unauthenticated struct{}

// Authenticated holds a usable token pair
type Authenticated struct {
	Identity token.Identity
	Pair     token.Pair
}

// AuthenticatedError keeps the stale pair after a failed refresh. Access checks treat
// it as invalid; it is left through Retry (once) or Logout.
type AuthenticatedError struct {
	Identity token.Identity
	Pair     token.Pair
	Cause    error
	Retried  bool
}

func (Unauthenticated) Name() string    { return StateUnauthenticated }
func (Authenticated) Name() string      { return StateAuthenticated }
func (AuthenticatedError) Name() string { return StateAuthenticatedError }

func (Unauthenticated) isState()    {}
func (Authenticated) isState()      {}
func (AuthenticatedError) isState() {}

// IsAuthenticated reports whether state grants access. Only Authenticated does.
func IsAuthenticated(state State) bool {
	_, ok := state.(Authenticated)
	return ok
}

// IdentityOf returns the principal of an authenticated or error state
func IdentityOf(state State) (token.Identity, bool) {
	switch st := state.(type) {
	case Authenticated:
		return st.Identity, true
	case AuthenticatedError:
		return st.Identity, true
	default:
		return token.Identity{}, false
	}
}

func pairOf(state State) token.Pair {
	switch st := state.(type) {
	case Authenticated:
		return st.Pair
	case AuthenticatedError:
		return st.Pair
	default:
		return token.Pair{}
	}
}

func samePair(a, b token.Pair) bool {
	return a.AccessToken == b.AccessToken && a.RefreshToken == b.RefreshToken
}
