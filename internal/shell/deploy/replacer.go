package deploy

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/artpar/relaunch/internal/shell/docker"
)

// DefaultStopGracePeriod is how long a running instance gets to exit before it is killed.
const DefaultStopGracePeriod = 10 * time.Second

// Replacer retires the existing instance under a name.
type Replacer struct {
	docker    docker.Client
	stopGrace time.Duration
	logger    *slog.Logger
}

// NewReplacer creates a Replacer. A zero stopGrace uses DefaultStopGracePeriod.
func NewReplacer(cli docker.Client, stopGrace time.Duration, logger *slog.Logger) *Replacer {
	if logger == nil {
		logger = slog.Default()
	}
	if stopGrace <= 0 {
		stopGrace = DefaultStopGracePeriod
	}
	return &Replacer{
		docker:    cli,
		stopGrace: stopGrace,
		logger:    logger.With("component", "replacer"),
	}
}

// Replace stops and force-removes the instance called name, if any.
// It never fails: every engine error is logged and swallowed, since a real
// leftover will surface as a conflict when the replacement is created.
// The returned info is nil when no instance existed.
func (r *Replacer) Replace(ctx context.Context, name string) *docker.ContainerInfo {
	info, err := r.docker.InspectContainer(ctx, name)
	if err != nil {
		if !errors.Is(err, docker.ErrContainerNotFound) {
			r.logger.Warn("failed to inspect existing instance", "name", name, "error", err)
		}
		return nil
	}

	grace := r.stopGrace
	if err := r.docker.StopContainer(ctx, name, &grace); err != nil {
		if errors.Is(err, docker.ErrContainerNotRunning) || errors.Is(err, docker.ErrContainerNotFound) {
			r.logger.Debug("existing instance already stopped", "name", name)
		} else {
			r.logger.Warn("failed to stop existing instance", "name", name, "error", err)
		}
	}

	if err := r.docker.RemoveContainer(ctx, name, docker.RemoveOptions{Force: true}); err != nil {
		if errors.Is(err, docker.ErrContainerNotFound) {
			r.logger.Debug("existing instance already removed", "name", name)
		} else {
			r.logger.Warn("failed to remove existing instance", "name", name, "error", err)
		}
	}

	r.logger.Info("retired existing instance", "name", name, "container_id", shortID(info.ID))
	return info
}

// shortID truncates a container ID for logs and summaries.
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
