// Command shopguard serves the account endpoints of a storefront: signup,
// signin, token validation and the signed-in user's profile, plus input
// and password checks and a Prometheus scrape endpoint.
//
// Configuration comes from the environment and an optional .env file. See
// shopguard.LoadConfigFromEnv for the variables. Without REDIS_ADDR an
// embedded miniredis holds lockout and rate-limit state; without
// DATABASE_URL accounts live in memory.
//
//	SHOPGUARD_SIGNING_SECRET=$(openssl rand -hex 32) go run ./cmd/shopguard
//
//	curl -i -X POST localhost:8080/api/auth/signup \
//	  -H 'Content-Type: application/json' \
//	  -d '{"name":"Alice","email":"alice@example.com","password":"Kx9#mPq2!vLw","confirmPassword":"Kx9#mPq2!vLw"}'
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/getsentry/sentry-go"
	"github.com/redis/go-redis/v9"
	"github.com/yldrmabdullah/shopguard"
	sentrysink "github.com/yldrmabdullah/shopguard/auditsink/sentry"
	"github.com/yldrmabdullah/shopguard/metrics/export/prometheus"
	"github.com/yldrmabdullah/shopguard/userstore/memory"
	"github.com/yldrmabdullah/shopguard/userstore/postgres"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "shopguard:", err)
		os.Exit(1)
	}
}

func run() error {
	env, err := shopguard.LoadConfigFromEnv()
	if err != nil {
		return err
	}

	logger, err := newLogger(env)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---------- infrastructure ----------
	rdb, closeRedis, err := openRedis(ctx, env.RedisAddr, logger)
	if err != nil {
		return err
	}
	defer closeRedis()

	users, closeUsers, err := openUserStore(ctx, env.DatabaseURL, logger)
	if err != nil {
		return err
	}
	defer closeUsers()

	sinks := shopguard.MultiSink{shopguard.NewZapSink(logger)}
	if env.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         env.SentryDSN,
			Environment: env.AppEnv,
		}); err != nil {
			return fmt.Errorf("sentry init: %w", err)
		}
		sentrySink := sentrysink.New(nil, sentrysink.Options{})
		defer sentrySink.Flush(2 * time.Second)
		sinks = append(sinks, sentrySink)
		env.Config.Audit.Enabled = true
	}

	// ---------- engine ----------
	engine, err := shopguard.New().
		WithConfig(env.Config).
		WithRedis(rdb).
		WithUserProvider(users).
		WithAuditSink(sinks).
		WithLogger(logger.Named("engine")).
		Build()
	if err != nil {
		return fmt.Errorf("engine build: %w", err)
	}
	defer engine.Close()

	report := engine.SecurityReport()
	logger.Info("engine ready",
		zap.String("signing_algorithm", report.SigningAlgorithm),
		zap.Bool("shared_lockout", report.SharedLockout),
		zap.Bool("production_mode", report.ProductionMode),
	)

	srv := &server{
		engine:  engine,
		logger:  logger.Named("http"),
		metrics: prometheus.New(engine).Handler(),
	}
	httpServer := &http.Server{
		Addr:              env.HTTPAddr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", env.HTTPAddr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func newLogger(env shopguard.Env) (*zap.Logger, error) {
	if env.Production() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// openRedis connects to addr, or starts an embedded miniredis when addr is
// empty.
func openRedis(ctx context.Context, addr string, logger *zap.Logger) (redis.UniversalClient, func(), error) {
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start miniredis: %w", err)
		}
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		logger.Warn("REDIS_ADDR not set, lockout state is local to this process", zap.String("addr", mr.Addr()))
		return client, func() {
			_ = client.Close()
			mr.Close()
		}, nil
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

// openUserStore uses Postgres when databaseURL is set and memory otherwise.
func openUserStore(ctx context.Context, databaseURL string, logger *zap.Logger) (shopguard.UserProvider, func(), error) {
	if databaseURL == "" {
		logger.Warn("DATABASE_URL not set, accounts are kept in memory")
		return memory.New(nil), func() {}, nil
	}

	pool, err := postgres.Open(ctx, databaseURL)
	if err != nil {
		return nil, nil, err
	}
	store := postgres.New(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return store, pool.Close, nil
}
