package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/jrsteele09/go-admin-session/exchange"
	"github.com/jrsteele09/go-admin-session/guard"
	"github.com/jrsteele09/go-admin-session/internal/config"
	"github.com/jrsteele09/go-admin-session/internal/metrics"
	"github.com/jrsteele09/go-admin-session/issuer"
	refreshrepofake "github.com/jrsteele09/go-admin-session/issuer/repofake"
	"github.com/jrsteele09/go-admin-session/server"
	"github.com/jrsteele09/go-admin-session/session"
	"github.com/jrsteele09/go-admin-session/token"
	"github.com/jrsteele09/go-admin-session/token/refresh"
	fakeuserrepo "github.com/jrsteele09/go-admin-session/users/repofake"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("Failed to load .env")
	}

	for {
		if err := run(); err != nil {
			log.Error().Err(err).Msg("Error running server")
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Info().Msg("Server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	setupLogging(c)
	displayAppname(c.GetAppName())

	m := metrics.New()
	handler, closeStore, err := build(c, m)
	if err != nil {
		return err
	}
	defer closeStore()

	srv := &http.Server{Addr: c.GetPort(), Handler: handler}
	serveErr := make(chan error, 1)
	go func() { serveErr <- listenAndServe(srv) }()

	select {
	case err := <-serveErr:
		return err
	case <-waitForStopSignal():
	}
	returnError = shutdown(srv)
	return returnError
}

// build wires the exchanger, session store, guard and front end from configuration
func build(c config.Config, m *metrics.Metrics) (http.Handler, func(), error) {
	var (
		exchanger exchange.Exchanger
		opts      = []server.Option{server.WithMetrics(m)}
	)

	switch {
	case c.GetIssuerURL() != "":
		ctx, cancel := context.WithTimeout(context.Background(), c.GetExchangeTimeout())
		defer cancel()
		oauthConfig, revokeURL, err := exchange.Discover(ctx, c.GetIssuerURL(), c.GetClientID(), c.GetClientSecret(), c.GetScopes())
		if err != nil {
			return nil, nil, err
		}
		if c.GetRevokeURL() != "" {
			revokeURL = c.GetRevokeURL()
		}
		exchanger = exchange.NewOAuth2Exchanger(oauthConfig, exchange.WithRevokeURL(revokeURL))
		log.Info().Str("issuer", c.GetIssuerURL()).Str("token_url", oauthConfig.Endpoint.TokenURL).Msg("Using discovered issuer")
	case c.GetTokenURL() != "":
		oauthConfig := &oauth2.Config{
			ClientID:     c.GetClientID(),
			ClientSecret: c.GetClientSecret(),
			Scopes:       c.GetScopes(),
			Endpoint:     oauth2.Endpoint{TokenURL: c.GetTokenURL(), AuthStyle: oauth2.AuthStyleInParams},
		}
		exchanger = exchange.NewOAuth2Exchanger(oauthConfig, exchange.WithRevokeURL(c.GetRevokeURL()))
		log.Info().Str("token_url", c.GetTokenURL()).Msg("Using configured token endpoint")
	default:
		iss, err := localIssuer(c)
		if err != nil {
			return nil, nil, err
		}
		exchanger = iss
		opts = append(opts, server.WithIssuer(iss))
	}

	store, closeStore := sessionStore(c)

	policy := token.NewPolicy(
		token.WithBuffer(c.GetExpiryBuffer()),
		token.WithMinRefreshValidity(c.GetMinRefreshValidity()),
	)
	executor := refresh.NewExecutor(exchanger, policy,
		refresh.WithMaxRetries(c.GetRefreshMaxRetries()),
		refresh.WithBaseDelay(c.GetRefreshBackoffBase()),
		refresh.WithAttemptTimeout(c.GetExchangeTimeout()),
		refresh.WithDefaultHorizon(c.GetDefaultAccessTokenExpiry()),
		refresh.WithMetrics(m),
	)
	manager := session.NewManager(store, exchanger, executor, policy,
		session.WithExchangeTimeout(c.GetExchangeTimeout()),
		session.WithDefaultHorizon(c.GetDefaultAccessTokenExpiry()),
		session.WithMetrics(m),
	)

	table, err := guard.TableFromConfig(c.GetRouteRules())
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	g := guard.New(table, c.GetLoginPath(), c.GetHomePath(), guard.WithMetrics(m))

	return server.New(c, manager, g, opts...), closeStore, nil
}

// localIssuer runs the built-in issuer with an in-memory user directory seeded with the admin account
func localIssuer(c config.Config) (*issuer.Service, error) {
	userRepo := fakeuserrepo.NewFakeUserRepo()
	generated, err := issuer.EnsureAdmin(userRepo, c.GetAdminUsername(), c.GetAdminPassword())
	if err != nil {
		return nil, err
	}
	if generated != "" {
		log.Warn().Str("username", c.GetAdminUsername()).Str("password", generated).Msg("Generated admin password, it will not be shown again")
	}

	secret := c.GetSigningSecret()
	if secret == "" {
		secretBytes := make([]byte, 32)
		if _, err := rand.Read(secretBytes); err != nil {
			return nil, fmt.Errorf("failed to generate signing secret: %w", err)
		}
		secret = base64.RawURLEncoding.EncodeToString(secretBytes)
		log.Info().Msg("Generated signing secret, tokens will not survive a restart")
	}

	log.Info().Str("issuer", c.GetBaseURL()).Msg("Using built-in issuer")
	return issuer.New(userRepo, refreshrepofake.NewFakeRefreshTokenRepo(), token.NewHMACSigner(secret), c.GetBaseURL(),
		issuer.WithAudience(c.GetAudience()),
		issuer.WithTokenExpiry(c.GetIssuerAccessTokenExpiry(), c.GetIssuerRefreshTokenExpiry()),
		issuer.WithClient(c.GetClientID(), c.GetClientSecret()),
	), nil
}

func sessionStore(c config.Config) (session.Store, func()) {
	if c.GetRedisAddr() == "" {
		log.Info().Msg("Using in-memory session store")
		return session.NewMemoryStore(c.GetMaxSessionAge()), func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     c.GetRedisAddr(),
		Password: c.GetRedisPassword(),
		DB:       c.GetRedisDB(),
	})
	log.Info().Str("addr", c.GetRedisAddr()).Msg("Using redis session store")
	return session.NewRedisStore(client, c.GetMaxSessionAge()), func() {
		if err := client.Close(); err != nil {
			log.Err(err).Msg("Failed to close redis client")
		}
	}
}

func setupLogging(c config.Config) {
	level, err := zerolog.ParseLevel(c.GetLogLevel())
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if c.GetEnv() == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
