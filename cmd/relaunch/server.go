package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/artpar/relaunch/internal/core/engine"
	"github.com/artpar/relaunch/internal/shell/api"
	"github.com/artpar/relaunch/internal/shell/api/middleware"
	"github.com/artpar/relaunch/internal/shell/callback"
	"github.com/artpar/relaunch/internal/shell/deploy"
	"github.com/artpar/relaunch/internal/shell/docker"
	"github.com/artpar/relaunch/internal/shell/metrics"
	"github.com/artpar/relaunch/internal/shell/store"
	"github.com/artpar/relaunch/internal/shell/workers"
)

// startupPingTimeout bounds the engine and redis pings at startup.
const startupPingTimeout = 5 * time.Second

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess         = 0
	ExitConfigError     = 1
	ExitDatabaseError   = 2
	ExitDockerError     = 3
	ExitHTTPServerError = 4
	ExitLockError       = 5
)

// =============================================================================
// Server
// =============================================================================

// Server represents the relaunch application server.
type Server struct {
	config     *Config
	httpServer *http.Server
	store      store.Store
	docker     *docker.DockerClient
	redis      *redis.Client
	service    *deploy.Service
	dispatcher *callback.Dispatcher
	monitor    *workers.EngineMonitor
	retention  *workers.Retention
	logger     *slog.Logger
}

// NewServer creates a new server with the given config.
func NewServer(cfg *Config, logger *slog.Logger) (*Server, error) {
	// Connect to database
	if err := ensureDataDir(cfg.Database.DSN); err != nil {
		return nil, &ServerError{Op: "NewServer", Err: err, ExitCode: ExitDatabaseError}
	}
	s, err := store.NewSQLiteStore(cfg.Database.DSN)
	if err != nil {
		return nil, &ServerError{
			Op:       "NewServer",
			Err:      err,
			ExitCode: ExitDatabaseError,
		}
	}

	// Resolve the engine connection once for the lifetime of the process
	conn, warnings := engine.Resolve(cfg.Docker.EngineSettings())
	for _, w := range warnings {
		logger.Warn("engine connection fallback", "detail", w)
	}
	if cfg.Registry.NamespaceOnly() {
		logger.Warn("registry host is treated as a Docker Hub namespace", "registry_host", cfg.Registry.Host)
	}

	d, err := docker.NewDockerClient(conn, cfg.Docker.ConnectionConfig(logger))
	if err != nil {
		s.Close()
		return nil, &ServerError{
			Op:       "NewServer",
			Err:      err,
			ExitCode: ExitDockerError,
		}
	}
	logger.Info("container engine configured", "host", d.Host())

	// The engine may come up after us; deploys fail individually until it does.
	pingCtx, cancel := context.WithTimeout(context.Background(), startupPingTimeout)
	if err := d.Ping(pingCtx); err != nil {
		logger.Warn("container engine not reachable at startup", "host", d.Host(), "error", err)
	}
	cancel()

	m := metrics.New()

	// Per-name lock
	var (
		locker      deploy.Locker
		redisClient *redis.Client
	)
	switch cfg.Deploy.LockBackend {
	case LockBackendRedis:
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Deploy.RedisAddr,
			Password: cfg.Deploy.RedisPassword,
			DB:       cfg.Deploy.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), startupPingTimeout)
		err := redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			redisClient.Close()
			d.Close()
			s.Close()
			return nil, &ServerError{
				Op:       "NewServer",
				Err:      fmt.Errorf("redis lock backend %s: %w", cfg.Deploy.RedisAddr, err),
				ExitCode: ExitLockError,
			}
		}
		locker = deploy.NewRedisLocker(redisClient, cfg.Deploy.LockTTL, logger)
		logger.Info("using redis lock backend", "addr", cfg.Deploy.RedisAddr)
	default:
		locker = deploy.NewMemoryLocker()
	}

	// Completion callbacks
	notifier := callback.NewNotifier(cfg.Callback.NotifierConfig(), logger)
	if notifier.Enabled() {
		logger.Info("callbacks enabled",
			"url", cfg.Callback.URL,
			"signed", cfg.Callback.Secret != "",
		)
	} else {
		logger.Info("callbacks disabled")
	}
	dispatcher := callback.NewDispatcher(callback.DispatcherConfig{
		Sender:       notifier,
		QueueSize:    cfg.Callback.QueueSize,
		DrainTimeout: cfg.Callback.DrainTimeout,
		Metrics:      m,
		Logger:       logger,
	})

	deployer := deploy.NewDeployer(d, cfg.DeployerConfig(), m, logger)
	service := deploy.NewService(deployer, logger,
		deploy.WithHistory(s),
		deploy.WithCallbackQueue(dispatcher),
		deploy.WithLocker(locker),
		deploy.WithMetrics(m),
	)

	handler := api.NewHandler(api.Config{
		Deployer: service,
		Store:    s,
		Engine:   d,
		Metrics:  m,
		Auth: middleware.AuthConfig{
			SharedSecret: cfg.Auth.SharedSecret,
			Tokens:       cfg.Auth.APITokens,
			Logger:       logger,
		},
		Version: Version,
		Logger:  logger,
	})
	if cfg.Auth.SharedSecret == "" && len(cfg.Auth.APITokens) == 0 {
		logger.Warn("API authentication disabled: no shared secret or tokens configured")
	}

	// Create HTTP server
	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	monitor := workers.NewEngineMonitor(d, workers.EngineMonitorConfig{
		Interval: cfg.Docker.PingInterval,
	}, m, logger)

	retention := workers.NewRetention(s, workers.RetentionConfig{
		MaxAge:   cfg.Database.Retention,
		Interval: cfg.Database.RetentionInterval,
	}, m, logger)

	return &Server{
		config:     cfg,
		httpServer: httpServer,
		store:      s,
		docker:     d,
		redis:      redisClient,
		service:    service,
		dispatcher: dispatcher,
		monitor:    monitor,
		retention:  retention,
		logger:     logger,
	}, nil
}

type inflightWaiter interface {
	Wait(ctx context.Context) error
}

type callbackStopper interface {
	Stop()
}

// stopCallbacks waits up to timeout for in-flight deployments before stopping
// the dispatcher. Callbacks enqueued after that are delivered inline.
func stopCallbacks(ctx context.Context, inflight inflightWaiter, dispatcher callbackStopper, timeout time.Duration, logger *slog.Logger) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := inflight.Wait(waitCtx); err != nil {
		logger.Warn("deployments still running at shutdown", "error", err)
	}
	dispatcher.Stop()
}

// ensureDataDir creates the parent directory of a file-backed DSN.
func ensureDataDir(dsn string) error {
	if strings.Contains(dsn, ":memory:") || strings.HasPrefix(dsn, "file:") {
		return nil
	}
	path, _, _ := strings.Cut(dsn, "?")
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	return nil
}

// Start starts the server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	// Background workers
	s.dispatcher.Start()
	s.monitor.Start()
	s.retention.Start()

	// Start HTTP server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server",
			"address", s.config.Server.Address())
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-sigCh:
		s.logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		s.Shutdown(context.Background())
		return &ServerError{
			Op:       "Start",
			Err:      err,
			ExitCode: ExitHTTPServerError,
		}
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown(context.Background())
}

// Shutdown gracefully shuts down the server.
// In-flight deploys finish before queued callbacks are drained.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("initiating graceful shutdown")

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
	defer cancel()

	// Shutdown HTTP server
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	// Let running deployments enqueue their callbacks, then deliver the queue
	stopCallbacks(ctx, s.service, s.dispatcher, s.config.Server.ShutdownTimeout, s.logger)

	s.monitor.Stop()
	s.retention.Stop()

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("redis close error", "error", err)
		}
	}

	// Close Docker client
	if err := s.docker.Close(); err != nil {
		s.logger.Error("Docker client close error", "error", err)
	}

	// Close database
	if err := s.store.Close(); err != nil {
		s.logger.Error("database close error", "error", err)
	}

	s.logger.Info("shutdown complete")
	return nil
}

// =============================================================================
// Server Error
// =============================================================================

// ServerError represents an error during server operation.
type ServerError struct {
	Op       string
	Err      error
	ExitCode int
}

func (e *ServerError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *ServerError) Unwrap() error {
	return e.Err
}
