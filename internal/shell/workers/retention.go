package workers

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/artpar/relaunch/internal/shell/metrics"
)

// HistoryPruner deletes history records that finished before cutoff.
type HistoryPruner interface {
	DeleteDeploymentsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionConfig configures the retention worker.
type RetentionConfig struct {
	// MaxAge is how long history records are kept.
	MaxAge time.Duration

	// Interval is the time between sweeps.
	// Default: 1 hour.
	Interval time.Duration
}

// Retention periodically removes deployment history older than MaxAge.
type Retention struct {
	store   HistoryPruner
	config  RetentionConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRetention creates a new retention worker.
func NewRetention(s HistoryPruner, config RetentionConfig, m *metrics.Metrics, logger *slog.Logger) *Retention {
	if config.Interval == 0 {
		config.Interval = time.Hour
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Retention{
		store:   s,
		config:  config,
		metrics: m,
		logger:  logger.With("component", "retention"),
		now:     time.Now,
	}
}

// Start begins the retention background goroutine.
// A non-positive MaxAge disables the worker.
func (r *Retention) Start() {
	if r.config.MaxAge <= 0 {
		r.logger.Info("history retention disabled")
		return
	}

	r.ctx, r.cancel = context.WithCancel(context.Background())

	r.wg.Add(1)
	go r.run()

	r.logger.Info("retention started",
		"max_age", r.config.MaxAge,
		"interval", r.config.Interval,
	)
}

// Stop stops the worker and waits for an in-flight sweep.
func (r *Retention) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

func (r *Retention) run() {
	defer r.wg.Done()

	// Run immediately on start
	r.sweep(r.ctx)

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.sweep(r.ctx)
		}
	}
}

// sweep deletes expired records once and returns how many were removed.
func (r *Retention) sweep(ctx context.Context) int64 {
	cutoff := r.now().Add(-r.config.MaxAge)

	n, err := r.store.DeleteDeploymentsBefore(ctx, cutoff)
	if err != nil {
		r.logger.Error("failed to prune deployment history", "error", err)
		return 0
	}

	r.metrics.HistoryPruned(n)
	if n > 0 {
		r.logger.Info("pruned deployment history", "deleted", n, "cutoff", cutoff)
	}
	return n
}
