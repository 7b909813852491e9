// Package session owns a signed-in admin's token pair. A Session moves between the
// Unauthenticated, Authenticated and AuthenticatedError states and refreshes the
// access token on demand, with at most one refresh in flight.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/go-admin-session/exchange"
	apperrors "github.com/jrsteele09/go-admin-session/internal/errors"
	"github.com/jrsteele09/go-admin-session/internal/metrics"
	"github.com/jrsteele09/go-admin-session/token"
	"github.com/jrsteele09/go-admin-session/token/refresh"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultExchangeTimeout = 30 * time.Second

	refreshKey = "refresh"
)

// Observer is told about every state change. It runs while the session is locked
// and must not call back into the session.
type Observer func(s *Session, from, to State)

type Session struct {
	id        string
	exchanger exchange.Exchanger
	executor  *refresh.Executor
	policy    *token.Policy
	timeout   time.Duration
	horizon   time.Duration
	observers []Observer
	metrics   *metrics.Metrics

	lock   sync.Mutex
	state  State
	flight singleflight.Group
}

type Option func(*Session)

// WithExchangeTimeout bounds the login and revoke calls
func WithExchangeTimeout(d time.Duration) Option {
	return func(s *Session) {
		s.timeout = d
	}
}

// WithDefaultHorizon sets the access lifetime assumed when a login access token has no exp
func WithDefaultHorizon(d time.Duration) Option {
	return func(s *Session) {
		s.horizon = d
	}
}

func WithObserver(o Observer) Option {
	return func(s *Session) {
		s.observers = append(s.observers, o)
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) {
		s.metrics = m
	}
}

// WithState starts the session in a previously persisted state
func WithState(state State) Option {
	return func(s *Session) {
		if state != nil {
			s.state = state
		}
	}
}

func New(id string, exchanger exchange.Exchanger, executor *refresh.Executor, policy *token.Policy, opts ...Option) *Session {
	s := &Session{
		id:        id,
		exchanger: exchanger,
		executor:  executor,
		policy:    policy,
		timeout:   DefaultExchangeTimeout,
		horizon:   token.DefaultAccessHorizon,
		state:     Unauthenticated{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) ID() string {
	return s.id
}

// State returns the current state
func (s *Session) State() State {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.state
}

// Login exchanges credentials for a token pair. On failure the state is unchanged and
// the error is a credential error or, for timeouts and network failures, a transient one.
func (s *Session) Login(ctx context.Context, creds exchange.Credentials) (State, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	grant, err := s.exchanger.Login(ctx, creds)
	if err != nil {
		if !apperrors.IsTransient(err) && ctx.Err() != nil {
			err = &apperrors.TransientError{Op: "login", Err: err}
		}
		s.metrics.Login("failure")
		return s.State(), err
	}

	next := Authenticated{
		Identity: grant.Identity,
		Pair:     token.NewPairWithHorizon(grant.AccessToken, grant.RefreshToken, s.policy.Now(), s.horizon),
	}
	if next.Identity.IsZero() {
		next.Identity.Username = creds.Username
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	s.setLocked(next)
	s.metrics.Login("success")
	return next, nil
}

// RequestAccess checks the session before a protected access, refreshing the pair when
// it is expired or about to expire. Concurrent callers share one refresh and observe
// the same result. The refresh outlives ctx; a caller that gives up gets Unauthenticated
// and ctx.Err(), never the stale pair.
func (s *Session) RequestAccess(ctx context.Context) (State, error) {
	switch st := s.State().(type) {
	case Authenticated:
		if !s.policy.ShouldRefreshPair(st.Pair) {
			return st, nil
		}
		return s.refresh(ctx, false)
	case AuthenticatedError:
		return st, apperrors.Wrapf(apperrors.ErrSessionInvalid, "refresh failed")
	default:
		return st, apperrors.ErrNotAuthenticated
	}
}

// Retry makes the one manual refresh attempt allowed after a failed refresh
func (s *Session) Retry(ctx context.Context) (State, error) {
	switch st := s.State().(type) {
	case Authenticated:
		return s.RequestAccess(ctx)
	case AuthenticatedError:
		if st.Retried {
			return st, apperrors.Wrapf(apperrors.ErrSessionInvalid, "refresh already retried")
		}
		return s.refresh(ctx, true)
	default:
		return st, apperrors.ErrNotAuthenticated
	}
}

// Logout clears the session. The local transition always happens; the returned error
// only reports a failed remote revocation.
func (s *Session) Logout(ctx context.Context) error {
	s.lock.Lock()
	refreshToken := pairOf(s.state).RefreshToken
	s.setLocked(Unauthenticated{})
	s.lock.Unlock()

	if refreshToken == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.exchanger.Revoke(ctx, refreshToken); err != nil {
		log.Warn().Err(err).Str("session_id", s.id).Msg("failed to revoke refresh token at logout")
		return apperrors.Wrapf(err, "revoke")
	}
	return nil
}

func (s *Session) refresh(ctx context.Context, retry bool) (State, error) {
	ch := s.flight.DoChan(refreshKey, func() (interface{}, error) {
		return s.runRefresh(context.WithoutCancel(ctx), retry)
	})

	select {
	case <-ctx.Done():
		return Unauthenticated{}, ctx.Err()
	case res := <-ch:
		return res.Val.(State), res.Err
	}
}

// runRefresh re-reads the state so a caller arriving just after a refresh completed
// does not start another one
func (s *Session) runRefresh(ctx context.Context, retry bool) (State, error) {
	from := s.State()

	var identity token.Identity
	switch st := from.(type) {
	case Authenticated:
		if !s.policy.ShouldRefreshPair(st.Pair) {
			return st, nil
		}
		identity = st.Identity
	case AuthenticatedError:
		if !retry || st.Retried {
			return st, apperrors.Wrapf(apperrors.ErrSessionInvalid, "refresh failed")
		}
		identity = st.Identity
	default:
		return from, apperrors.ErrNotAuthenticated
	}
	pair := pairOf(from)

	result, err := s.executor.Refresh(ctx, pair)

	s.lock.Lock()
	defer s.lock.Unlock()

	// logout or a new login happened meanwhile
	if !samePair(pairOf(s.state), pair) || s.state.Name() != from.Name() {
		if err == nil && !IsAuthenticated(s.state) {
			err = apperrors.ErrNotAuthenticated
		}
		return s.state, err
	}

	if err != nil {
		next := AuthenticatedError{Identity: identity, Pair: pair, Cause: err, Retried: retry}
		s.setLocked(next)
		return next, err
	}

	if !result.Identity.IsZero() {
		identity = result.Identity
	}
	next := Authenticated{Identity: identity, Pair: result.Pair}
	s.setLocked(next)
	return next, nil
}

func (s *Session) setLocked(next State) {
	prev := s.state
	s.state = next

	logEvent := log.Debug()
	if cause := causeOf(next); cause != nil {
		logEvent = log.Warn().Err(cause)
	}
	logEvent.Str("session_id", s.id).Str("from", prev.Name()).Str("to", next.Name()).Msg("session transition")
	s.metrics.Transition(prev.Name(), next.Name())

	for _, o := range s.observers {
		o(s, prev, next)
	}
}

func causeOf(state State) error {
	if st, ok := state.(AuthenticatedError); ok {
		return st.Cause
	}
	return nil
}
