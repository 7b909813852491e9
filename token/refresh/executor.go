// Package refresh exchanges a session's refresh token for a new token pair with
// bounded retries. Only transient failures are retried.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jrsteele09/go-admin-session/exchange"
	apperrors "github.com/jrsteele09/go-admin-session/internal/errors"
	"github.com/jrsteele09/go-admin-session/internal/metrics"
	"github.com/jrsteele09/go-admin-session/token"
	"github.com/rs/zerolog/log"
)

const (
	DefaultMaxRetries     = 2
	DefaultBaseDelay      = 1 * time.Second
	DefaultAttemptTimeout = 30 * time.Second
)

// Result is a successful refresh
type Result struct {
	Pair     token.Pair
	Identity token.Identity
}

// Executor runs the refresh exchange. Retries back off exponentially from the base
// delay, doubling each time. Credential failures stop immediately.
type Executor struct {
	refresher      exchange.Refresher
	policy         *token.Policy
	maxRetries     int
	baseDelay      time.Duration
	attemptTimeout time.Duration
	horizon        time.Duration
	metrics        *metrics.Metrics
	nowFunc        func() time.Time
}

type Option func(*Executor)

// WithMaxRetries sets the retries allowed after the first attempt
func WithMaxRetries(n int) Option {
	return func(e *Executor) {
		if n >= 0 {
			e.maxRetries = n
		}
	}
}

func WithBaseDelay(d time.Duration) Option {
	return func(e *Executor) {
		e.baseDelay = d
	}
}

// WithAttemptTimeout bounds each refresh call. Hitting it counts as a transient failure.
func WithAttemptTimeout(d time.Duration) Option {
	return func(e *Executor) {
		e.attemptTimeout = d
	}
}

// WithDefaultHorizon sets the access lifetime assumed when the new access token has no exp
func WithDefaultHorizon(d time.Duration) Option {
	return func(e *Executor) {
		e.horizon = d
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) {
		e.metrics = m
	}
}

func WithNowFunc(nowFunc func() time.Time) Option {
	return func(e *Executor) {
		e.nowFunc = nowFunc
	}
}

func NewExecutor(refresher exchange.Refresher, policy *token.Policy, opts ...Option) *Executor {
	e := &Executor{
		refresher:      refresher,
		policy:         policy,
		maxRetries:     DefaultMaxRetries,
		baseDelay:      DefaultBaseDelay,
		attemptTimeout: DefaultAttemptTimeout,
		horizon:        token.DefaultAccessHorizon,
		nowFunc:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Refresh exchanges current.RefreshToken for a new pair. Every failure is returned as
// a *errors.RefreshError carrying the attempt count and the last cause.
func (e *Executor) Refresh(ctx context.Context, current token.Pair) (Result, error) {
	start := e.nowFunc()

	if !e.policy.IsUsable(current.RefreshToken) {
		e.metrics.RefreshOutcome("unusable", 0)
		return Result{}, &apperrors.RefreshError{
			Attempts: 0,
			Err:      apperrors.NewCredentialError(apperrors.CodeAuthError, "refresh token is missing or about to expire", apperrors.ErrRefreshUnusable),
		}
	}

	var (
		attempts int
		result   Result
	)
	operation := func() error {
		attempts++
		grant, err := e.attempt(ctx, current.RefreshToken)
		if err != nil {
			if apperrors.IsTransient(err) {
				e.metrics.RefreshAttempt("transient")
				return err
			}
			e.metrics.RefreshAttempt("credential")
			return backoff.Permanent(err)
		}

		if _, err := token.Decode(grant.AccessToken); err != nil {
			e.metrics.RefreshAttempt("invalid_token")
			return backoff.Permanent(apperrors.NewCredentialError(apperrors.CodeAuthError, "issuer returned an undecodable access token", fmt.Errorf("%w: %w", apperrors.ErrInvalidToken, err)))
		}

		refreshToken := grant.RefreshToken
		if refreshToken == "" {
			refreshToken = current.RefreshToken
		}
		result = Result{
			Pair:     token.NewPairWithHorizon(grant.AccessToken, refreshToken, e.nowFunc(), e.horizon),
			Identity: grant.Identity,
		}
		e.metrics.RefreshAttempt("success")
		return nil
	}

	notify := func(err error, next time.Duration) {
		log.Warn().Err(err).Int("attempt", attempts).Dur("next_backoff", next).Msg("refresh attempt failed, retrying")
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(e.newBackOff(), ctx), notify); err != nil {
		e.metrics.RefreshOutcome("failure", e.nowFunc().Sub(start))
		log.Error().Err(err).Int("attempts", attempts).Msg("refresh failed")
		return Result{}, &apperrors.RefreshError{Attempts: attempts, Err: err}
	}

	e.metrics.RefreshOutcome("success", e.nowFunc().Sub(start))
	return result, nil
}

func (e *Executor) attempt(ctx context.Context, refreshToken string) (exchange.Grant, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, e.attemptTimeout)
	defer cancel()

	grant, err := e.refresher.Refresh(attemptCtx, refreshToken)
	if err != nil && !apperrors.IsTransient(err) && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		err = &apperrors.TransientError{Op: "refresh", Err: err}
	}
	return grant, err
}

// newBackOff yields baseDelay, 2*baseDelay, ... for maxRetries retries, then stops
func (e *Executor) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.baseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = e.baseDelay << e.maxRetries
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithMaxRetries(b, uint64(e.maxRetries))
}
