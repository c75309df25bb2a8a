package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"exam-ledger-service/internal/app"
	"exam-ledger-service/internal/config"
	"exam-ledger-service/internal/infra/memory"
	"exam-ledger-service/internal/infra/postgres"
	redisinfra "exam-ledger-service/internal/infra/redis"
	"exam-ledger-service/internal/seed"
	transport "exam-ledger-service/internal/transport/http"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

// notificationHub is both the sink services publish to and the feed the
// websocket handler reads from.
type notificationHub interface {
	app.Notifier
	transport.NotificationFeed
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, log, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	defer log.Sync()

	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("jwt secret not configured")
	}
	loc, err := cfg.Location()
	if err != nil {
		return fmt.Errorf("ledger time zone: %w", err)
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var (
		store  app.Store
		loader app.Catalog
	)
	if cfg.Postgres.URL != "" {
		db, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := migrateDB(ctx, db, log); err != nil {
			return err
		}
		store = postgres.NewStore(db)

		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		loader = postgres.NewCatalogLoader(pool)
	} else {
		mem := memory.NewStore()
		bundle, err := loadBundle(cfg.Catalog.SeedPath)
		if err != nil {
			return err
		}
		stats, err := seed.Apply(ctx, mem, bundle)
		if err != nil {
			return err
		}
		log.Info("in-memory store seeded", "tests", stats.Tests, "questions", stats.Questions, "users", stats.Users)
		store, loader = mem, mem
	}

	catalogTTL := config.TTLDuration(cfg.Catalog.TTL, 10*time.Minute)
	connTTL := config.TTLDuration(cfg.Redis.TTL, 2*time.Minute)

	var (
		catalog  app.Catalog
		hub      notificationHub
		registry transport.ConnectionRegistry
	)
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		catalog = redisinfra.NewCatalogCache(client, loader, catalogTTL)
		hub = redisinfra.NewNotifier(client, log)
		registry = redisinfra.NewRegistry(client, connTTL)
	} else {
		catalog = memory.NewCatalogCache(loader, catalogTTL)
		hub = memory.NewHub()
		registry = memory.NewRegistry(connTTL)
	}

	services := app.NewServices(store, catalog, hub, app.Options{Location: loc, Log: log})

	switch strings.ToLower(cfg.Log.Mode) {
	case "prod", "production":
		gin.SetMode(gin.ReleaseMode)
	}
	router := transport.NewRouter(services, hub, registry, transport.RouterConfig{
		JWTSecret:   cfg.Auth.JWTSecret,
		CORSOrigins: cfg.Server.CORSOrigins,
	}, log)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info("starting exam ledger service", "port", finalPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("failed to start server", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func loadBundle(path string) (seed.Bundle, error) {
	if path == "" {
		return seed.Sample()
	}
	return seed.Load(path)
}
