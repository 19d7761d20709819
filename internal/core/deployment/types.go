package deployment

import "github.com/artpar/relaunch/internal/core/domain"

// =============================================================================
// Container Plan Types
// =============================================================================

// ContainerPlan represents a planned container configuration.
// This is the pure output of planning, ready for the shell to execute.
type ContainerPlan struct {
	Name          string
	Image         string
	Env           []string // KEY=VALUE lines, request order preserved
	Labels        map[string]string
	Ports         []PortPlan
	Volumes       []VolumePlan
	RestartPolicy RestartPolicyPlan

	// Warnings lists request entries that were dropped while planning.
	Warnings []string
}

// PortPlan represents a planned port binding.
type PortPlan struct {
	ContainerPort int
	HostPort      int
	Protocol      string
	HostIP        string
}

// VolumePlan represents a planned volume mount.
type VolumePlan struct {
	Source   string
	Target   string
	ReadOnly bool
}

// RestartPolicyPlan represents a restart policy.
type RestartPolicyPlan struct {
	Name              string
	MaximumRetryCount int
}

// =============================================================================
// Builder Parameter Types
// =============================================================================

// BuildContainerPlanParams contains all inputs for building a container plan.
type BuildContainerPlanParams struct {
	DeploymentID string
	Image        string
	Request      domain.DeployRequest
}

// =============================================================================
// Container Labels
// =============================================================================

// Label keys set on every container this service creates.
const (
	LabelManaged    = "com.relaunch.managed"
	LabelDeployment = "com.relaunch.deployment"
	LabelVersion    = "com.relaunch.version"
)

// RestartUnlessStopped keeps the container running across crashes and daemon
// restarts; only an explicit stop (the replacer) takes it down.
const RestartUnlessStopped = "unless-stopped"
