package deploy

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/artpar/relaunch/internal/core/domain"
	"github.com/artpar/relaunch/internal/shell/metrics"
)

// =============================================================================
// Deploy Service
// =============================================================================

// HistoryRecorder persists the outcome of an invocation.
type HistoryRecorder interface {
	CreateDeployment(ctx context.Context, record *domain.DeploymentRecord) error
}

// CallbackQueue accepts finished payloads for asynchronous delivery.
type CallbackQueue interface {
	Enqueue(payload domain.CallbackPayload) bool
}

// Service is the entry point for a deploy invocation.
type Service struct {
	deployer *Deployer
	locker   Locker
	history  HistoryRecorder
	callback CallbackQueue
	metrics  *metrics.Metrics
	logger   *slog.Logger
	newID    func() string

	inflight sync.WaitGroup
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithHistory records every invocation in h.
func WithHistory(h HistoryRecorder) ServiceOption {
	return func(s *Service) { s.history = h }
}

// WithCallbackQueue hands every finished payload to q.
func WithCallbackQueue(q CallbackQueue) ServiceOption {
	return func(s *Service) { s.callback = q }
}

// WithLocker replaces the default in-process Locker.
func WithLocker(l Locker) ServiceOption {
	return func(s *Service) { s.locker = l }
}

// WithMetrics records invocation metrics to m.
func WithMetrics(m *metrics.Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// NewService creates a Service around deployer.
func NewService(deployer *Deployer, logger *slog.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		deployer: deployer,
		locker:   NewMemoryLocker(),
		logger:   logger.With("component", "deploy_service"),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Deploy runs one invocation for req and returns the caller-facing response.
//
// Exactly one callback payload is enqueued per call, carrying the same
// deployment ID as the response. The error is non-nil only when the request
// was turned away because another deployment holds the name; the response
// is populated in that case too.
func (s *Service) Deploy(ctx context.Context, req domain.DeployRequest) (domain.DeployResponse, error) {
	s.inflight.Add(1)
	defer s.inflight.Done()

	id := s.newID()
	result, err := s.run(ctx, id, req)

	s.record(ctx, req, result)
	s.notify(req, result)

	return result.Response(), err
}

// Wait blocks until every in-flight Deploy has enqueued its callback, or
// until ctx is done.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) run(ctx context.Context, id string, req domain.DeployRequest) (domain.DeployResult, error) {
	unlock, err := s.locker.TryLock(ctx, req.Name)
	if err != nil {
		now := time.Now().UTC()
		s.metrics.DeployRejected()
		s.logger.Warn("deployment rejected", "deployment_id", id, "name", req.Name, "error", err)

		result := domain.DeployResult{
			DeploymentID: id,
			Image:        s.deployer.puller.ImageFor(req.Repo, req.Version),
			Stage:        domain.StagePending,
			Error:        err.Error(),
			Stderr:       err.Error(),
			StartedAt:    now,
			FinishedAt:   now,
		}
		if errors.Is(err, ErrDeploymentInProgress) {
			return result, err
		}
		// Lock backend unavailable: report it as a failed invocation.
		return result, nil
	}
	defer unlock()

	s.metrics.DeployStarted()
	result := s.deployer.Run(ctx, id, req)

	outcome := metrics.ResultSuccess
	if !result.Success {
		outcome = metrics.ResultFailure
	}
	s.metrics.DeployFinished(outcome, result.FinishedAt.Sub(result.StartedAt))

	return result, nil
}

func (s *Service) record(ctx context.Context, req domain.DeployRequest, result domain.DeployResult) {
	if s.history == nil {
		return
	}
	rec := domain.NewDeploymentRecord(req.Name, result)
	// The deploy context may already be cancelled; history is written regardless.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.history.CreateDeployment(recordCtx, &rec); err != nil {
		s.logger.Warn("failed to record deployment", "deployment_id", result.DeploymentID, "error", err)
		return
	}
	s.logger.Debug("deployment recorded",
		"deployment_id", rec.ID,
		"success", rec.Success,
		"duration", rec.Duration(),
	)
}

func (s *Service) notify(req domain.DeployRequest, result domain.DeployResult) {
	if s.callback == nil {
		return
	}
	if !s.callback.Enqueue(domain.NewCallbackPayload(req, result)) {
		s.logger.Warn("callback not queued", "deployment_id", result.DeploymentID)
	}
}
