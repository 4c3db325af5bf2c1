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

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/servimarket/portal/internal/api"
	"github.com/servimarket/portal/internal/api/metrics"
	"github.com/servimarket/portal/internal/api/middleware"
	"github.com/servimarket/portal/internal/core/ports"
	"github.com/servimarket/portal/internal/core/service"
	mongodb "github.com/servimarket/portal/internal/infrastructure/db/mongo"
	redisdb "github.com/servimarket/portal/internal/infrastructure/db/redis"
	"github.com/servimarket/portal/internal/infrastructure/http/handlers"
	"github.com/servimarket/portal/internal/infrastructure/queue"
	"github.com/servimarket/portal/internal/infrastructure/transport/httpapi"
	"github.com/servimarket/portal/internal/pkg/config"
	"github.com/servimarket/portal/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "portal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var envFile string
	flagSet := pflag.NewFlagSet("portal", pflag.ContinueOnError)
	flagSet.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx, envFile)
	if err != nil {
		return err
	}

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.IsDevelopment(),
		Service: "portal",
	})

	// --- Storage ---
	rdb, err := redisdb.Connect(ctx, redisdb.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	if err != nil {
		return err
	}
	defer rdb.Close()

	mongoClient, db, err := mongodb.Connect(ctx, mongodb.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database, AppName: "portal"})
	if err != nil {
		return err
	}
	defer func() {
		dctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = mongoClient.Disconnect(dctx)
	}()

	auditRepo := mongodb.NewAuditRepository(db)
	if err := auditRepo.EnsureIndexes(ctx); err != nil {
		log.Warn().Err(err).Msg("audit indexes not created")
	}

	// --- Audit workers ---
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	dispatcher := queue.NewDispatcher(cfg.Audit.Workers, auditRepo, log)
	dispatcher.Start(workerCtx)
	defer func() {
		stopWorkers()
		dispatcher.Wait()
	}()

	// --- Visitors ---
	cookies := redisdb.NewCookieStore(rdb, cfg.Portal.CookieTTL)
	apiOpts := httpapi.Options{
		BaseURL:    cfg.API.BaseURL,
		Timeout:    cfg.API.Timeout,
		UploadPath: cfg.API.UploadPath,
		Observe:    metrics.ObserveUpstream,
	}
	registry := service.NewRegistry(newTransportFactory(apiOpts, cookies, log), dispatcher, service.RegistryOptions{
		MountTimeout: cfg.Portal.MountTimeout,
		IdleTTL:      cfg.Portal.IdleTTL,
		MaxVisitors:  cfg.Portal.MaxVisitors,
	}, log)
	defer registry.Close()

	metrics.RegisterGauges(registry.Len, dispatcher.Pending)
	go sweep(ctx, registry, cfg.Portal.SweepInterval, log)

	// --- HTTP ---
	e := api.NewRouter(api.RouterConfig{
		Visitors: registry,
		Cookie: middleware.VisitorConfig{
			Secret:     cfg.Portal.VisitorSecret,
			CookieName: cfg.Portal.CookieName,
			TTL:        cfg.Portal.CookieTTL,
			Secure:     cfg.Portal.CookieSecure,
		},
		ReadyWait:  cfg.Portal.ReadyWait,
		LoginRate:  cfg.Portal.LoginRate,
		LoginBurst: cfg.Portal.LoginBurst,
		Checks:     []handlers.Check{handlers.MongoCheck(db), handlers.RedisCheck(rdb)},
		Log:        log,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Str("api", cfg.API.BaseURL).Msg("portal listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	log.Info().Msg("portal stopped")
	return nil
}

// newTransportFactory gives every visitor its own API client. The client's
// cookies are restored from and written through to Redis, and every 401 it
// sees is counted as a session invalidation.
func newTransportFactory(opts httpapi.Options, cookies ports.CookieStore, log zerolog.Logger) service.TransportFactory {
	return func(ctx context.Context, visitorID string) (ports.Transport, ports.Uploader, error) {
		client, err := httpapi.ForVisitor(ctx, opts, visitorID, cookies, log)
		if err != nil {
			return nil, nil, err
		}
		client.OnUnauthorized(metrics.SessionInvalidationsTotal.Inc)
		return client, client, nil
	}
}

func sweep(ctx context.Context, registry *service.Registry, every time.Duration, log zerolog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := registry.Sweep(); n > 0 {
				log.Debug().Int("evicted", n).Int("remaining", registry.Len()).Msg("visitor sweep")
			}
		}
	}
}
