package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	auditadapter "github.com/campushub/activity-registration-api/internal/adapters/audit"
	"github.com/campushub/activity-registration-api/internal/adapters/httpapi"
	memactivitystore "github.com/campushub/activity-registration-api/internal/adapters/memory/activitystore"
	memidemstore "github.com/campushub/activity-registration-api/internal/adapters/memory/idemstore"
	postgres "github.com/campushub/activity-registration-api/internal/adapters/postgres"
	pgactivitystore "github.com/campushub/activity-registration-api/internal/adapters/postgres/activitystore"
	pgidemstore "github.com/campushub/activity-registration-api/internal/adapters/postgres/idemstore"
	redisidemstore "github.com/campushub/activity-registration-api/internal/adapters/redis/idemstore"
	"github.com/campushub/activity-registration-api/internal/app/activities"
	"github.com/campushub/activity-registration-api/internal/app/registrations"
	platformclock "github.com/campushub/activity-registration-api/internal/platform/clock"
	"github.com/campushub/activity-registration-api/internal/platform/config"
	"github.com/campushub/activity-registration-api/internal/platform/logging"
	"github.com/campushub/activity-registration-api/internal/platform/retry"
	activitystoreport "github.com/campushub/activity-registration-api/internal/ports/out/activitystore"
	idemstoreport "github.com/campushub/activity-registration-api/internal/ports/out/idemstore"
	"github.com/campushub/activity-registration-api/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("error").Error("invalid config", "error", err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clk := platformclock.NewSystemClock()

	var (
		store     activitystoreport.Store
		idemStore idemstoreport.Store
		cleanup   func()
	)

	switch cfg.StorageBackend {
	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolOptions{})
		if err != nil {
			log.Error("postgres connect failed", "error", err)
			os.Exit(1)
		}
		cleanup = pool.Close
		if err := migrations.Apply(ctx, pool); err != nil {
			log.Error("migrations failed", "error", err)
			os.Exit(1)
		}
		store = pgactivitystore.NewStore(pool)
		idemStore = pgidemstore.NewStore(pool)
	default:
		store = memactivitystore.NewStore()
		idemStore = memidemstore.NewStore()
	}
	if cleanup != nil {
		defer cleanup()
	}

	switch cfg.IdempotencyBackend {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = client.Close() }()
		if err := client.Ping(ctx).Err(); err != nil {
			log.Error("redis connect failed", "error", err)
			os.Exit(1)
		}
		idemStore = redisidemstore.NewStore(client, "idem", cfg.IdempotencyTTL)
	case "memory":
		idemStore = memidemstore.NewStore()
	}

	sink := auditadapter.NewSlogSink(log)

	registrationsSvc := registrations.NewService(store, idemStore, sink, clk)
	registrationsSvc.SetRetryPolicy(retry.Policy{
		Attempts:  cfg.RetryAttempts,
		BaseDelay: cfg.RetryBaseDelay,
		MaxDelay:  500 * time.Millisecond,
	})
	activitiesSvc := activities.NewService(store, idemStore, sink, clk)

	api := httpapi.NewServer(activitiesSvc, registrationsSvc)

	var auth func(http.Handler) http.Handler
	if cfg.Env == "development" {
		auth = httpapi.NewDevAuthMiddleware(os.Getenv("DEV_USER_ID"))
	} else {
		auth = httpapi.NewHeaderAuthMiddleware()
	}

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           httpapi.NewRouter(api, log, auth),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("api listening", "port", cfg.HTTPPort, "storage", cfg.StorageBackend, "idempotency", cfg.IdempotencyBackend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("listen failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown failed", "error", err)
	}
}
