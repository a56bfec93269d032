// Package cli provides common process initialization utilities shared by
// cmd/bilancio, cmd/month-worker and cmd/bilancio-cli.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bilancio/internal/amqp"
	"bilancio/internal/backend"
	"bilancio/internal/cache"
	"bilancio/internal/config"
	"bilancio/internal/log"
	"bilancio/internal/services"
	"bilancio/internal/storage"

	"github.com/joho/godotenv"
)

// SetupLogger initializes structured logging at the given level and sets it
// as the default logger.
func SetupLogger(level string) *log.Logger {
	logger := log.New(log.Config{
		Level:     log.ParseLevel(level),
		Component: log.ComponentApp,
	})
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *log.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	return cfg
}

// App holds the wired services of one process.
type App struct {
	Store     *storage.Store
	Templates *services.TemplateService
	Sources   *services.PaymentSourceService
	Months    *services.MonthService
	AMQP      *amqp.Client

	backend *backend.Opened
	caches  *cache.Manager
}

// NewApp builds the storage backend, read cache, optional AMQP client and the
// services on top of them. An unreachable broker is logged and the app runs
// without events.
func NewApp(ctx context.Context, logger *log.Logger, cfg *config.Config) (*App, error) {
	opts, err := backend.OptionsFrom(cfg)
	if err != nil {
		return nil, err
	}
	opened, err := backend.NewOpener(logger.WithComponent(log.ComponentBackend)).Open(ctx, opts)
	if err != nil {
		return nil, err
	}

	app := &App{backend: opened}

	var docCache cache.Cache[storage.CachedDocument]
	if cfg.CacheEnabled {
		lru := cache.NewLRUCache[storage.CachedDocument](cfg.CacheSize, cfg.CacheTTL)
		app.caches = cache.NewManager(logger.WithComponent(log.ComponentCache))
		app.caches.Register(lru)
		app.caches.StartCleanup(cfg.CacheTTL)
		docCache = lru
	}
	// the unwrapped backend keeps its revision check visible to the store
	app.Store = storage.NewStore(opened.Backend, docCache, logger.WithComponent(log.ComponentStorage))

	var publisher services.Publisher
	if cfg.AMQPEnabled() {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger.WithComponent(log.ComponentAMQP))
		if err != nil {
			logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without events", log.FieldError, err)
		} else {
			app.AMQP = client
			publisher = client
		}
	}

	app.Templates = services.NewTemplateService(app.Store, publisher, logger.WithComponent(log.ComponentTemplate))
	app.Sources = services.NewPaymentSourceService(app.Store, logger.WithComponent(log.ComponentStorage))
	app.Months = services.NewMonthService(services.MonthServiceDeps{
		Store:     app.Store,
		Templates: app.Templates,
		Sources:   app.Sources,
		Publisher: publisher,
		Logger:    logger.WithComponent(log.ComponentMonth),
	})

	logger.InfoContext(ctx, "Application initialized",
		"backend", cfg.DataBackend,
		"cache_enabled", cfg.CacheEnabled,
		"amqp_enabled", app.AMQP != nil)

	return app, nil
}

// Ready reports whether the document backend can serve requests.
func (a *App) Ready(ctx context.Context) error {
	return a.backend.Probe(ctx)
}

// Close releases the cache cleaner, the AMQP connection and the backend.
func (a *App) Close() error {
	var errs []error

	if a.caches != nil {
		a.caches.Stop()
	}
	if a.AMQP != nil {
		if err := a.AMQP.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	return errors.Join(errs...)
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that signals when shutdown is complete.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func(ctx context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		cancel()
		if cleanup != nil {
			cleanup(shutdownCtx)
		}

		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached")
		} else {
			logger.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled and cleanup ran.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
