// Package deploy runs the replace-and-start sequence against a container engine.
package deploy

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	coredeployment "github.com/artpar/relaunch/internal/core/deployment"
	"github.com/artpar/relaunch/internal/core/domain"
	"github.com/artpar/relaunch/internal/shell/docker"
	"github.com/artpar/relaunch/internal/shell/metrics"
)

// =============================================================================
// Deployer - Replace-and-Start State Machine
// =============================================================================

// Config holds deployer settings.
type Config struct {
	Registry        RegistryConfig
	PruneImages     bool
	StopGracePeriod time.Duration
	Timeout         time.Duration // overall deadline per invocation; 0 means none
}

// Deployer sequences pull, replace, create, start and the optional prune.
type Deployer struct {
	docker   docker.Client
	puller   *Puller
	replacer *Replacer
	cfg      Config
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewDeployer creates a Deployer. metrics may be nil.
func NewDeployer(cli docker.Client, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Deployer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Deployer{
		docker:   cli,
		puller:   NewPuller(cli, cfg.Registry, logger),
		replacer: NewReplacer(cli, cfg.StopGracePeriod, logger),
		cfg:      cfg,
		metrics:  m,
		logger:   logger.With("component", "deployer"),
	}
}

// run tracks one invocation through the state machine.
type run struct {
	id        string
	stage     domain.Stage
	enteredAt time.Time
	prune     bool
	stdout    strings.Builder
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

func (r *run) enter(to domain.Stage) {
	if err := domain.ValidateTransition(r.stage, to); err != nil {
		r.logger.Error("unexpected stage transition", "from", r.stage, "to", to, "error", err)
	}
	now := time.Now()
	if r.stage != domain.StagePending {
		r.metrics.StageCompleted(string(r.stage), now.Sub(r.enteredAt))
	}
	r.logger.Debug("stage transition", "from", r.stage, "stage", to)
	r.stage = to
	r.enteredAt = now
}

// advance enters the stage that follows the current one on the success path.
func (r *run) advance() {
	r.enter(r.stage.Next(r.prune))
}

func (r *run) printf(format string, args ...any) {
	fmt.Fprintf(&r.stdout, format+"\n", args...)
}

// Run executes one deployment of req under deploymentID.
// The returned result is always populated; a failure stops the sequence at
// the failing stage and carries the triggering error verbatim.
func (d *Deployer) Run(ctx context.Context, deploymentID string, req domain.DeployRequest) domain.DeployResult {
	if d.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()
	}

	image := d.puller.ImageFor(req.Repo, req.Version)
	result := domain.DeployResult{
		DeploymentID: deploymentID,
		Image:        image,
		StartedAt:    time.Now().UTC(),
	}

	r := &run{
		id:      deploymentID,
		stage:   domain.StagePending,
		prune:   d.cfg.PruneImages,
		metrics: d.metrics,
		logger: d.logger.With(
			"deployment_id", deploymentID,
			"name", req.Name,
			"image", image,
		),
	}

	plan := coredeployment.BuildContainerPlan(coredeployment.BuildContainerPlanParams{
		DeploymentID: deploymentID,
		Image:        image,
		Request:      req,
	})
	result.Warnings = plan.Warnings
	for _, w := range plan.Warnings {
		r.logger.Warn("request entry dropped", "warning", w)
	}

	r.logger.Info("deployment started")

	err := d.execute(ctx, r, plan)
	result.Stdout = r.stdout.String()
	result.FinishedAt = time.Now().UTC()

	if err != nil {
		stageErr := &StageError{Stage: r.stage, Err: err}
		d.metrics.StageFailed(string(r.stage))
		r.enter(domain.StageFailed)

		result.Stage = stageErr.Stage
		result.Error = err.Error()
		result.Stderr = stageErr.Error()
		r.logger.Error("deployment failed",
			"stage", stageErr.Stage,
			"error", err,
			"duration", result.FinishedAt.Sub(result.StartedAt),
		)
		return result
	}

	r.advance()
	result.Success = true
	result.Stage = r.stage
	r.logger.Info("deployment completed",
		"stage", r.stage,
		"duration", result.FinishedAt.Sub(result.StartedAt),
	)
	return result
}

// execute walks the success path. On error r.stage is the failing stage.
func (d *Deployer) execute(ctx context.Context, r *run, plan coredeployment.ContainerPlan) error {
	// 1. Pull image
	r.advance()
	pulled, err := d.puller.Pull(ctx, plan.Image)
	if err != nil {
		return err
	}
	if pulled.Status != "" {
		r.printf("pulled %s: %s", plan.Image, pulled.Status)
	} else {
		r.printf("pulled %s", plan.Image)
	}

	// 2. Retire the previous instance
	r.advance()
	if prev := d.replacer.Replace(ctx, plan.Name); prev != nil {
		r.printf("removed previous instance %s (%s)", plan.Name, shortID(prev.ID))
	} else {
		r.printf("no previous instance %s", plan.Name)
	}

	// 3. Create container
	r.advance()
	containerID, err := d.docker.CreateContainer(ctx, containerSpec(plan))
	if err != nil {
		return err
	}
	r.printf("created container %s (%s)", plan.Name, shortID(containerID))

	// 4. Start container
	r.advance()
	if err := d.docker.StartContainer(ctx, containerID); err != nil {
		return err
	}
	r.printf("started %s on port %d (%s)", plan.Name, plan.Ports[0].HostPort, plan.Ports[0].Key())

	// 5. Prune dangling images; failures here never fail the deployment
	if r.stage.Next(r.prune) != domain.StagePruning {
		return nil
	}
	r.advance()
	report, err := d.docker.PruneImages(ctx)
	if err != nil {
		r.logger.Warn("image prune failed", "error", err)
		return nil
	}
	d.metrics.PruneReclaimed(report.SpaceReclaimed)
	r.printf("pruned %d dangling images, reclaimed %d bytes", report.ImagesDeleted, report.SpaceReclaimed)
	return nil
}

// containerSpec converts a plan into the engine client's create spec.
func containerSpec(plan coredeployment.ContainerPlan) docker.ContainerSpec {
	spec := docker.ContainerSpec{
		Name:   plan.Name,
		Image:  plan.Image,
		Env:    plan.Env,
		Labels: plan.Labels,
		RestartPolicy: docker.RestartPolicy{
			Name:              plan.RestartPolicy.Name,
			MaximumRetryCount: plan.RestartPolicy.MaximumRetryCount,
		},
	}
	for _, p := range plan.Ports {
		spec.Ports = append(spec.Ports, docker.PortBinding{
			ContainerPort: p.ContainerPort,
			HostPort:      p.HostPort,
			Protocol:      p.Protocol,
			HostIP:        p.HostIP,
		})
	}
	for _, v := range plan.Volumes {
		spec.Volumes = append(spec.Volumes, docker.VolumeMount{
			Source:   v.Source,
			Target:   v.Target,
			ReadOnly: v.ReadOnly,
		})
	}
	return spec
}
