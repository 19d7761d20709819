// Package deployment provides pure functions for planning a container replacement.
//
// Nothing in this package talks to the engine. The shell (internal/shell/deploy)
// builds a plan here and executes it through the Docker API.
//
// # Functions
//
//   - Image: assemble and validate image references (ImageReference, RegistryServer)
//   - Volumes: parse "host:container[:ro|rw]" strings (ParseVolumes)
//   - Env: keep KEY=VALUE lines (ParseEnv)
//   - Ports: the single TCP mapping of a deployment (BuildPortPlan)
//   - Container: the full creation plan (BuildContainerPlan)
//
// # Usage
//
//	image := deployment.ImageReference(registryHost, req.Repo, req.Version)
//	plan := deployment.BuildContainerPlan(deployment.BuildContainerPlanParams{
//	    DeploymentID: id,
//	    Image:        image,
//	    Request:      req,
//	})
//	for _, w := range plan.Warnings {
//	    logger.Warn(w)
//	}
package deployment
