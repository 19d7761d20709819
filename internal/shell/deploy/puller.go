package deploy

import (
	"context"
	"log/slog"

	"github.com/artpar/relaunch/internal/core/deployment"
	"github.com/artpar/relaunch/internal/shell/docker"
)

// RegistryConfig describes where images come from and how to authenticate.
type RegistryConfig struct {
	Host     string // prepended to the request repo; empty means Docker Hub
	Username string // credentials are attached only when set
	Password string
	Platform string // e.g., "linux/amd64"; empty lets the engine choose
}

// Puller fetches images onto the engine.
type Puller struct {
	docker   docker.Client
	registry RegistryConfig
	logger   *slog.Logger
}

// NewPuller creates a Puller.
func NewPuller(cli docker.Client, registry RegistryConfig, logger *slog.Logger) *Puller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Puller{
		docker:   cli,
		registry: registry,
		logger:   logger.With("component", "puller"),
	}
}

// ImageFor returns the fully-qualified reference for repo:version.
func (p *Puller) ImageFor(repo, version string) string {
	return deployment.ImageReference(p.registry.Host, repo, version)
}

// Pull pulls image and returns once the engine has finished the pull stream.
func (p *Puller) Pull(ctx context.Context, image string) (*docker.PullResult, error) {
	if err := deployment.ValidateImageReference(image); err != nil {
		return nil, err
	}

	opts := docker.PullOptions{Platform: p.registry.Platform}
	if p.registry.Username != "" {
		opts.Auth = &docker.RegistryAuth{
			Username:      p.registry.Username,
			Password:      p.registry.Password,
			ServerAddress: deployment.RegistryServer(image),
		}
	}

	p.logger.Debug("pulling image", "image", image, "authenticated", opts.Auth != nil)
	return p.docker.PullImage(ctx, image, opts)
}
