// Package docker provides a Docker client for container lifecycle management.
package docker

import (
	"context"
	"time"
)

// =============================================================================
// Container Types
// =============================================================================

// ContainerSpec defines the specification for creating a container.
type ContainerSpec struct {
	Name          string
	Image         string
	Env           []string // KEY=VALUE
	Labels        map[string]string
	Ports         []PortBinding
	Volumes       []VolumeMount
	RestartPolicy RestartPolicy
}

// PortBinding defines a port mapping.
type PortBinding struct {
	ContainerPort int
	HostPort      int    // 0 for auto-assign
	Protocol      string // "tcp" or "udp"
	HostIP        string // "" for 0.0.0.0
}

// VolumeMount defines a volume mount.
type VolumeMount struct {
	Source   string // Volume name or host path
	Target   string // Container path
	ReadOnly bool
}

// RestartPolicy defines the container restart policy.
type RestartPolicy struct {
	Name              string // "no", "always", "on-failure", "unless-stopped"
	MaximumRetryCount int
}

// =============================================================================
// Container Info
// =============================================================================

// ContainerStatus represents the container status.
type ContainerStatus string

const (
	ContainerStatusCreated    ContainerStatus = "created"
	ContainerStatusRunning    ContainerStatus = "running"
	ContainerStatusPaused     ContainerStatus = "paused"
	ContainerStatusRestarting ContainerStatus = "restarting"
	ContainerStatusRemoving   ContainerStatus = "removing"
	ContainerStatusExited     ContainerStatus = "exited"
	ContainerStatusDead       ContainerStatus = "dead"
)

// ContainerInfo contains information about a container.
type ContainerInfo struct {
	ID        string
	Name      string
	Image     string
	Status    ContainerStatus
	Running   bool
	CreatedAt time.Time
	Labels    map[string]string
}

// =============================================================================
// Image Types
// =============================================================================

// RegistryAuth holds registry credentials for a pull.
type RegistryAuth struct {
	Username      string
	Password      string
	ServerAddress string
}

// PullOptions defines options for pulling images.
type PullOptions struct {
	Platform string        // e.g., "linux/amd64"
	Auth     *RegistryAuth // nil for anonymous pulls
}

// PullResult summarises a completed pull stream.
type PullResult struct {
	Status string // last status line reported by the engine
	Digest string // "sha256:..." when the engine reported one
	Layers int    // distinct layers the engine reported progress for
}

// PruneReport summarises a dangling image prune.
type PruneReport struct {
	ImagesDeleted  int
	SpaceReclaimed uint64
}

// =============================================================================
// Options
// =============================================================================

// RemoveOptions defines options for removing containers.
type RemoveOptions struct {
	Force         bool
	RemoveVolumes bool
}

// =============================================================================
// Client Interface
// =============================================================================

// Client defines the container engine operations a deployment needs.
// Every method blocks until the engine answers or ctx is done.
type Client interface {
	// Image operations
	PullImage(ctx context.Context, image string, opts PullOptions) (*PullResult, error)
	PruneImages(ctx context.Context) (*PruneReport, error)

	// Container operations
	InspectContainer(ctx context.Context, nameOrID string) (*ContainerInfo, error)
	StopContainer(ctx context.Context, nameOrID string, timeout *time.Duration) error
	RemoveContainer(ctx context.Context, nameOrID string, opts RemoveOptions) error
	CreateContainer(ctx context.Context, spec ContainerSpec) (containerID string, err error)
	StartContainer(ctx context.Context, containerID string) error

	// Health operations
	Ping(ctx context.Context) error
	Close() error
}
