package deployment

// =============================================================================
// Container Plan Building Functions
// =============================================================================

// BuildContainerPlan builds a ContainerPlan from a deploy request.
//
// The function:
//   - Names the container after the request (the instance name)
//   - Maps the single host port to the container port over TCP
//   - Parses volume strings, dropping malformed ones
//   - Keeps KEY=VALUE environment lines, dropping the rest
//   - Requests the unless-stopped restart policy
//   - Labels the container with the deployment ID and version
//
// Every dropped entry is described in plan.Warnings.
//
// Example:
//
//	plan := BuildContainerPlan(BuildContainerPlanParams{
//	    DeploymentID: "3f0c...",
//	    Image:        "registry.example.com/library/nginx:alpine",
//	    Request:      domain.DeployRequest{Name: "web1", Port: 8080, ContainerPort: 80},
//	})
func BuildContainerPlan(params BuildContainerPlanParams) ContainerPlan {
	req := params.Request

	plan := ContainerPlan{
		Name:  req.Name,
		Image: params.Image,
		Labels: map[string]string{
			LabelManaged:    "true",
			LabelDeployment: params.DeploymentID,
			LabelVersion:    req.Version,
		},
		Ports:         []PortPlan{BuildPortPlan(req.Port, req.ContainerPort)},
		RestartPolicy: RestartPolicyPlan{Name: RestartUnlessStopped},
	}

	volumes, droppedVolumes := ParseVolumes(req.Volumes)
	plan.Volumes = volumes
	for _, v := range droppedVolumes {
		plan.Warnings = append(plan.Warnings, "dropped malformed volume "+quote(v))
	}

	env, droppedEnv := ParseEnv(req.Env)
	plan.Env = env
	for _, e := range droppedEnv {
		plan.Warnings = append(plan.Warnings, "dropped environment entry without '=' "+quote(e))
	}

	return plan
}

func quote(s string) string {
	return "\"" + s + "\""
}
