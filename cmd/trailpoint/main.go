package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/trailpoint-systems/trailpoint/common/logging"
	"github.com/trailpoint-systems/trailpoint/internal/audit"
	"github.com/trailpoint-systems/trailpoint/internal/config"
	"github.com/trailpoint-systems/trailpoint/internal/correlation"
	"github.com/trailpoint-systems/trailpoint/internal/handlers"
	"github.com/trailpoint-systems/trailpoint/internal/notifier"
	"github.com/trailpoint-systems/trailpoint/internal/ratelimit"
	"github.com/trailpoint-systems/trailpoint/internal/repository"
	"github.com/trailpoint-systems/trailpoint/internal/server"
	"github.com/trailpoint-systems/trailpoint/internal/service"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	migrationsPath := flag.String("migrations", "file://migrations", "migration source URL")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.New(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
	logging.SetDefault(logger)

	connString := cfg.Database.Postgres.ConnString()

	// Run database migrations
	logger.Info("running database migrations")
	m, err := migrate.New(*migrationsPath, connString)
	if err != nil {
		log.Fatalf("Failed to initialize migrations: %v", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	repo, err := repository.NewPostgresRepository(context.Background(), connString)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer repo.Close()

	limiter, err := ratelimit.NewRedisLimiter(
		cfg.Redis.URL,
		cfg.RateLimit.Limit,
		cfg.RateLimit.Window,
		!cfg.RateLimit.Enabled || !cfg.Redis.Enabled,
	)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer limiter.Close()

	var notify service.Notifier
	if cfg.NATS.Enabled {
		n, err := notifier.New(cfg.NATS.URL, logger)
		if err != nil {
			log.Fatalf("Failed to connect to NATS: %v", err)
		}
		defer n.Close()
		notify = n
	}

	recorder := audit.NewRecorder(cfg.Audit.SecretKey)
	resolver := correlation.NewResolver(repo, logger)
	svc := service.New(repo, resolver, recorder, notify, logger)
	handler := handlers.NewHandler(svc, limiter, logger)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.NewRouter(handler, cfg.Server.CORSOrigins, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("trailpoint listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("server stopped gracefully")
}
