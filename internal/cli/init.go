// Package cli implements the costs command tree and the process bootstrap
// shared by its commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"costmanager/internal/amqp"
	"costmanager/internal/cache"
	"costmanager/internal/config"
	"costmanager/internal/core"
	"costmanager/internal/log"
	"costmanager/internal/services"
	"costmanager/internal/storage"
)

// SetupLogger builds the structured logger for the CLI at the given level and
// installs it as the slog default. Logs go to w so they never mix with
// command output.
func SetupLogger(level string, w io.Writer) *log.Logger {
	logger := log.New(log.Config{
		Level:     log.ParseLevel(level),
		Component: log.ComponentCLI,
		Output:    w,
	})
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// A missing file is not an error.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration from the environment, applies
// the non-empty flag overrides, and validates the result.
func LoadAndValidateConfig(dbDir, logLevel string) (*config.Config, error) {
	cfg := config.Load()
	if dbDir != "" {
		cfg.DBDir = dbDir
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Runtime holds the components a command works with.
type Runtime struct {
	Config  *config.Config
	Logger  *log.Logger
	Store   *storage.CostStore
	Events  *amqp.Client
	Service *services.CostService

	queryCache   *cache.LRUCache[[]core.Cost]
	cacheManager *cache.Manager
	eventsErr    error
}

// NewRuntime wires the store, the query cache and, when AMQP_URL is set, the
// event client into a CostService. An unreachable broker only disables
// events. The database itself opens lazily on the first operation.
func NewRuntime(cfg *config.Config, logger *log.Logger) (*Runtime, error) {
	rt := &Runtime{
		Config: cfg,
		Logger: logger,
		Store:  storage.NewAtPath(cfg.DBPath()),
	}

	var publisher services.EventPublisher
	if cfg.EventsEnabled() {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			rt.eventsErr = fmt.Errorf("connect to event broker: %w", err)
			logger.Warn("Event broker unreachable, continuing without cost events",
				log.FieldOperation, log.OpStartup,
				log.FieldError, err)
		} else {
			rt.Events = client
			publisher = client
			logger.Debug("Cost events enabled",
				log.FieldOperation, log.OpStartup,
				"exchange", cfg.AMQPExchange,
				"queue", cfg.AMQPQueue)
		}
	}

	var queryCache cache.Cache[[]core.Cost]
	if cfg.QueryCacheSize > 0 {
		rt.queryCache = cache.NewLRUCache[[]core.Cost](cfg.QueryCacheSize, cfg.QueryCacheTTL)
		rt.cacheManager = cache.NewManager()
		rt.cacheManager.Register(rt.queryCache)
		queryCache = rt.queryCache
	}

	rt.Service = services.NewCostService(rt.Store, publisher, queryCache)
	return rt, nil
}

// StartCacheCleanup expires stale query results periodically. Only long
// running commands need it.
func (rt *Runtime) StartCacheCleanup(interval time.Duration) {
	if rt.cacheManager != nil {
		rt.cacheManager.StartCleanup(interval)
	}
}

// Close releases everything NewRuntime acquired.
func (rt *Runtime) Close() error {
	if rt.cacheManager != nil {
		rt.cacheManager.Stop()
		stats := rt.queryCache.Stats()
		rt.Logger.Debug("Query cache stats", "size", stats.Size, "hits", stats.Hits, "misses", stats.Misses)
	}

	var errs []error
	if rt.Events != nil {
		if err := rt.Events.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close event client: %w", err))
		}
	}
	if err := rt.Service.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// GracefulShutdown returns a context that is cancelled on SIGINT or SIGTERM.
// The returned stop function releases the signal handler.
func GracefulShutdown(parent context.Context, logger *log.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}
