// Package workers contains background workers for relaunch.
package workers

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/artpar/relaunch/internal/shell/metrics"
)

// Pinger checks connectivity to the container engine.
type Pinger interface {
	Ping(ctx context.Context) error
}

// EngineMonitorConfig configures the engine monitor worker.
type EngineMonitorConfig struct {
	// Interval is the time between pings.
	// Default: 30 seconds.
	Interval time.Duration

	// Timeout bounds a single ping.
	// Default: 5 seconds.
	Timeout time.Duration
}

// DefaultEngineMonitorConfig returns the default configuration.
func DefaultEngineMonitorConfig() EngineMonitorConfig {
	return EngineMonitorConfig{
		Interval: 30 * time.Second,
		Timeout:  5 * time.Second,
	}
}

// EngineMonitor periodically pings the container engine, logs reachability
// changes, and exports the latest result as a gauge.
type EngineMonitor struct {
	engine  Pinger
	config  EngineMonitorConfig
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu      sync.Mutex
	checked bool
	up      bool

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEngineMonitor creates a new engine monitor worker.
func NewEngineMonitor(engine Pinger, config EngineMonitorConfig, m *metrics.Metrics, logger *slog.Logger) *EngineMonitor {
	defaults := DefaultEngineMonitorConfig()
	if config.Interval == 0 {
		config.Interval = defaults.Interval
	}
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &EngineMonitor{
		engine:  engine,
		config:  config,
		metrics: m,
		logger:  logger.With("component", "engine_monitor"),
	}
}

// Start begins the monitor background goroutine.
func (e *EngineMonitor) Start() {
	e.ctx, e.cancel = context.WithCancel(context.Background())

	e.wg.Add(1)
	go e.run()

	e.logger.Info("engine monitor started", "interval", e.config.Interval)
}

// Stop stops the monitor and waits for an in-flight ping to finish.
func (e *EngineMonitor) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
	e.logger.Info("engine monitor stopped")
}

// Up reports the result of the latest ping. It is false before the first.
func (e *EngineMonitor) Up() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.up
}

func (e *EngineMonitor) run() {
	defer e.wg.Done()

	// Run immediately on start
	e.check()

	ticker := time.NewTicker(e.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.check()
		}
	}
}

// check pings once and records the outcome.
func (e *EngineMonitor) check() {
	ctx, cancel := context.WithTimeout(e.ctx, e.config.Timeout)
	defer cancel()

	err := e.engine.Ping(ctx)
	if e.ctx.Err() != nil {
		return
	}
	up := err == nil

	e.mu.Lock()
	changed := !e.checked || e.up != up
	e.checked = true
	e.up = up
	e.mu.Unlock()

	e.metrics.EngineUp(up)

	if !changed {
		return
	}
	if up {
		e.logger.Info("container engine reachable")
	} else {
		e.logger.Warn("container engine unreachable", "error", err)
	}
}
