package refresh_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-admin-session/exchange"
	"github.com/jrsteele09/go-admin-session/exchange/exchangefake"
	apperrors "github.com/jrsteele09/go-admin-session/internal/errors"
	"github.com/jrsteele09/go-admin-session/internal/metrics"
	"github.com/jrsteele09/go-admin-session/token"
	"github.com/jrsteele09/go-admin-session/token/refresh"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func signed(t *testing.T, use string, exp time.Time) string {
	t.Helper()
	raw, err := token.NewHMACSigner("secret").Sign(&token.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Username: "admin",
		TokenUse: use,
	})
	require.NoError(t, err)
	return raw
}

type fixture struct {
	fake     *exchangefake.FakeExchanger
	metrics  *metrics.Metrics
	executor *refresh.Executor
	current  token.Pair
}

func setupFixture(t *testing.T, opts ...refresh.Option) *fixture {
	t.Helper()
	now := func() time.Time { return testNow }
	f := &fixture{
		fake:    exchangefake.NewFakeExchanger(),
		metrics: metrics.New(),
	}
	f.current = token.NewPair(
		signed(t, token.UseAccess, testNow.Add(-time.Second)),
		signed(t, token.UseRefresh, testNow.Add(24*time.Hour)),
		testNow.Add(-time.Hour),
	)
	opts = append([]refresh.Option{
		refresh.WithBaseDelay(time.Millisecond),
		refresh.WithMetrics(f.metrics),
		refresh.WithNowFunc(now),
	}, opts...)
	f.executor = refresh.NewExecutor(f.fake, token.NewPolicy(token.WithNowFunc(now)), opts...)
	return f
}

func transientErr() error {
	return &apperrors.TransientError{Op: "refresh", Err: errors.New("connection reset")}
}

func TestRetriesTransientThreeTimes(t *testing.T) {
	f := setupFixture(t)
	f.fake.RefreshFunc = func(ctx context.Context, refreshToken string) (exchange.Grant, error) {
		return exchange.Grant{}, transientErr()
	}

	_, err := f.executor.Refresh(context.Background(), f.current)
	require.Error(t, err)
	require.Equal(t, 3, f.fake.RefreshCalls())

	var re *apperrors.RefreshError
	require.True(t, errors.As(err, &re))
	require.Equal(t, 3, re.Attempts)
	require.True(t, apperrors.IsTransient(re.Err))
	require.Equal(t, 3.0, testutil.ToFloat64(f.metrics.RefreshAttempts.WithLabelValues("transient")))
}

func TestCredentialErrorIsNotRetried(t *testing.T) {
	f := setupFixture(t)
	f.fake.RefreshFunc = func(ctx context.Context, refreshToken string) (exchange.Grant, error) {
		return exchange.Grant{}, apperrors.NewCredentialError(apperrors.CodeAuthError, "refresh token revoked", apperrors.ErrInvalidRefreshToken)
	}

	_, err := f.executor.Refresh(context.Background(), f.current)
	require.Error(t, err)
	require.Equal(t, 1, f.fake.RefreshCalls())
	require.True(t, apperrors.IsCredential(err))
	require.ErrorIs(t, err, apperrors.ErrInvalidRefreshToken)

	var re *apperrors.RefreshError
	require.True(t, errors.As(err, &re))
	require.Equal(t, 1, re.Attempts)
}

func TestRecoversAfterTransientFailure(t *testing.T) {
	f := setupFixture(t)
	newAccess := signed(t, token.UseAccess, testNow.Add(10*time.Minute))
	newRefresh := signed(t, token.UseRefresh, testNow.Add(30*24*time.Hour))
	calls := 0
	f.fake.RefreshFunc = func(ctx context.Context, refreshToken string) (exchange.Grant, error) {
		calls++
		if calls == 1 {
			return exchange.Grant{}, transientErr()
		}
		return exchange.Grant{AccessToken: newAccess, RefreshToken: newRefresh, Identity: token.Identity{UserID: "user-1"}}, nil
	}

	result, err := f.executor.Refresh(context.Background(), f.current)
	require.NoError(t, err)
	require.Equal(t, 2, f.fake.RefreshCalls())
	require.Equal(t, newAccess, result.Pair.AccessToken)
	require.Equal(t, newRefresh, result.Pair.RefreshToken)
	require.Equal(t, testNow.Add(10*time.Minute).Unix(), result.Pair.AccessTokenExpiresAt.Unix())
	require.Equal(t, "user-1", result.Identity.UserID)
}

func TestUndecodableAccessTokenIsCredentialError(t *testing.T) {
	f := setupFixture(t)
	f.fake.RefreshFunc = func(ctx context.Context, refreshToken string) (exchange.Grant, error) {
		return exchange.Grant{AccessToken: "not-a-jwt", RefreshToken: "r2"}, nil
	}

	_, err := f.executor.Refresh(context.Background(), f.current)
	require.Error(t, err)
	require.Equal(t, 1, f.fake.RefreshCalls())
	require.True(t, apperrors.IsCredential(err))
	require.True(t, apperrors.IsDecode(err))
	require.ErrorIs(t, err, apperrors.ErrInvalidToken)
	require.Equal(t, apperrors.CodeAuthError, apperrors.CodeOf(err))
}

func TestKeepsRefreshTokenWhenNotRotated(t *testing.T) {
	f := setupFixture(t)
	newAccess := signed(t, token.UseAccess, testNow.Add(10*time.Minute))
	f.fake.RefreshFunc = func(ctx context.Context, refreshToken string) (exchange.Grant, error) {
		return exchange.Grant{AccessToken: newAccess}, nil
	}

	result, err := f.executor.Refresh(context.Background(), f.current)
	require.NoError(t, err)
	require.Equal(t, f.current.RefreshToken, result.Pair.RefreshToken)
}

func TestUnusableRefreshTokenFailsWithoutCalling(t *testing.T) {
	f := setupFixture(t)
	for name, refreshToken := range map[string]string{
		"missing":       "",
		"expired":       signed(t, token.UseRefresh, testNow.Add(-time.Minute)),
		"expiring soon": signed(t, token.UseRefresh, testNow.Add(90*time.Second)),
	} {
		t.Run(name, func(t *testing.T) {
			pair := f.current
			pair.RefreshToken = refreshToken

			_, err := f.executor.Refresh(context.Background(), pair)
			require.ErrorIs(t, err, apperrors.ErrRefreshUnusable)

			var re *apperrors.RefreshError
			require.True(t, errors.As(err, &re))
			require.Equal(t, 0, re.Attempts)
		})
	}
	require.Equal(t, 0, f.fake.RefreshCalls())
}

func TestAttemptTimeoutIsTransient(t *testing.T) {
	f := setupFixture(t, refresh.WithAttemptTimeout(5*time.Millisecond))
	f.fake.RefreshFunc = func(ctx context.Context, refreshToken string) (exchange.Grant, error) {
		<-ctx.Done()
		return exchange.Grant{}, ctx.Err()
	}

	_, err := f.executor.Refresh(context.Background(), f.current)
	require.Error(t, err)
	require.Equal(t, 3, f.fake.RefreshCalls())
	require.True(t, apperrors.IsTransient(err))
}

func TestCancelledContextStopsRetrying(t *testing.T) {
	f := setupFixture(t, refresh.WithBaseDelay(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	f.fake.RefreshFunc = func(context.Context, string) (exchange.Grant, error) {
		cancel()
		return exchange.Grant{}, transientErr()
	}

	_, err := f.executor.Refresh(ctx, f.current)
	require.Error(t, err)
	require.Equal(t, 1, f.fake.RefreshCalls())
	require.ErrorIs(t, err, context.Canceled)
}

func TestUnclassifiedErrorIsNotRetried(t *testing.T) {
	f := setupFixture(t)
	f.fake.RefreshFunc = func(context.Context, string) (exchange.Grant, error) {
		return exchange.Grant{}, errors.New("unexpected")
	}

	_, err := f.executor.Refresh(context.Background(), f.current)
	require.Error(t, err)
	require.Equal(t, 1, f.fake.RefreshCalls())
}
