package callback

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/artpar/relaunch/internal/core/domain"
	"github.com/artpar/relaunch/internal/shell/metrics"
)

// =============================================================================
// Background Dispatcher
// =============================================================================

// Sender delivers a single payload.
type Sender interface {
	Enabled() bool
	Notify(ctx context.Context, payload domain.CallbackPayload) error
}

// Dispatcher delivers callbacks from a bounded queue in the background so the
// deploy path only ever waits for an enqueue.
type Dispatcher struct {
	sender       Sender
	queue        chan domain.CallbackPayload
	drainTimeout time.Duration
	metrics      *metrics.Metrics
	logger       *slog.Logger

	// Lifecycle management
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}

	// stopped is set by Stop; later payloads are delivered inline.
	mu      sync.RWMutex
	stopped bool
}

// DispatcherConfig holds configuration for the dispatcher.
type DispatcherConfig struct {
	Sender       Sender
	QueueSize    int
	DrainTimeout time.Duration // how long Stop keeps delivering queued payloads
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
}

// NewDispatcher creates a new dispatcher. Call Start to begin delivery.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if cfg.DrainTimeout == 0 {
		cfg.DrainTimeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Dispatcher{
		sender:       cfg.Sender,
		queue:        make(chan domain.CallbackPayload, cfg.QueueSize),
		drainTimeout: cfg.DrainTimeout,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger.With("component", "callback_dispatcher"),
		stopCh:       make(chan struct{}),
	}
}

// Enqueue hands payload to the background worker without blocking.
// It returns false when the queue is full and the payload was dropped.
// Without a configured endpoint the payload is discarded and true is returned.
// After Stop the payload is delivered synchronously, bounded by the drain timeout.
func (d *Dispatcher) Enqueue(payload domain.CallbackPayload) bool {
	if !d.sender.Enabled() {
		d.metrics.CallbackResult(metrics.CallbackSkipped)
		return true
	}

	d.mu.RLock()
	if d.stopped {
		d.mu.RUnlock()
		d.logger.Warn("dispatcher stopped, delivering callback inline",
			"deployment_id", payload.DeploymentID,
		)
		ctx, cancel := context.WithTimeout(context.Background(), d.drainTimeout)
		defer cancel()
		d.deliver(ctx, payload)
		return true
	}
	defer d.mu.RUnlock()

	select {
	case d.queue <- payload:
		d.metrics.CallbackQueueDepth(len(d.queue))
		return true
	default:
		d.metrics.CallbackResult(metrics.CallbackDropped)
		d.logger.Error("callback queue full, dropping payload",
			"deployment_id", payload.DeploymentID,
			"queue_size", cap(d.queue),
		)
		return false
	}
}

// Start begins the delivery goroutine.
func (d *Dispatcher) Start() {
	d.ctx, d.cancel = context.WithCancel(context.Background())

	d.wg.Add(1)
	go d.run()

	d.logger.Info("callback dispatcher started", "queue_size", cap(d.queue))
}

// Stop delivers what is still queued, bounded by the drain timeout, and
// waits for the delivery goroutine to exit.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.mu.Lock()
		d.stopped = true
		d.mu.Unlock()
		close(d.stopCh)
	})
	d.wg.Wait()
	if d.cancel != nil {
		d.cancel()
	}
	d.logger.Info("callback dispatcher stopped")
}

// run is the main delivery loop.
func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case <-d.stopCh:
			d.drain()
			return
		case payload := <-d.queue:
			d.deliver(d.ctx, payload)
		}
	}
}

// drain delivers queued payloads until the queue is empty or the drain timeout passes.
func (d *Dispatcher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), d.drainTimeout)
	defer cancel()

	for {
		select {
		case payload := <-d.queue:
			d.deliver(ctx, payload)
		default:
			return
		}
		if ctx.Err() != nil {
			d.logger.Warn("callback drain timed out", "abandoned", len(d.queue))
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, payload domain.CallbackPayload) {
	d.metrics.CallbackQueueDepth(len(d.queue))

	if err := d.sender.Notify(ctx, payload); err != nil {
		d.metrics.CallbackResult(metrics.CallbackFailed)
		d.logger.Warn("callback delivery failed",
			"deployment_id", payload.DeploymentID,
			"error", err,
		)
		return
	}
	d.metrics.CallbackResult(metrics.CallbackDelivered)
}
