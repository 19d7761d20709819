// Package domain contains the value types exchanged by the deployment engine.
package domain

import "time"

// =============================================================================
// Deploy Request
// =============================================================================

// DeployRequest asks for the instance called Name to be replaced with
// Repo:Version. It is validated before it reaches the engine.
type DeployRequest struct {
	Name          string   `json:"name"`
	Repo          string   `json:"repo"`
	Version       string   `json:"version"`
	Port          int      `json:"port"`
	ContainerPort int      `json:"containerPort"`
	Volumes       []string `json:"volumes,omitempty"`
	Env           []string `json:"env,omitempty"`
}

// Params returns the audit subset of the request echoed in callbacks.
// Environment lines are left out since they routinely carry credentials.
func (r DeployRequest) Params() DeployParams {
	return DeployParams{
		Name:          r.Name,
		Repo:          r.Repo,
		Version:       r.Version,
		Port:          r.Port,
		ContainerPort: r.ContainerPort,
		Volumes:       r.Volumes,
	}
}

// DeployParams is the request echo carried by a CallbackPayload.
type DeployParams struct {
	Name          string   `json:"name"`
	Repo          string   `json:"repo"`
	Version       string   `json:"version"`
	Port          int      `json:"port"`
	ContainerPort int      `json:"containerPort"`
	Volumes       []string `json:"volumes,omitempty"`
}

// =============================================================================
// Deploy Result
// =============================================================================

// DeployResult is the outcome of a single invocation.
type DeployResult struct {
	Success      bool
	DeploymentID string
	Image        string
	Stage        Stage // DONE on success, the failing stage otherwise
	Stdout       string
	Stderr       string
	Error        string
	Warnings     []string
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Response converts the result to the caller-facing response.
func (r DeployResult) Response() DeployResponse {
	code := 0
	if !r.Success {
		code = 1
	}
	return DeployResponse{
		Success:      r.Success,
		Code:         code,
		Stdout:       r.Stdout,
		Stderr:       r.Stderr,
		Error:        r.Error,
		DeploymentID: r.DeploymentID,
		Warnings:     r.Warnings,
	}
}

// DeployResponse is returned to the caller of the deploy operation.
type DeployResponse struct {
	Success      bool     `json:"success"`
	Code         int      `json:"code"`
	Stdout       string   `json:"stdout,omitempty"`
	Stderr       string   `json:"stderr,omitempty"`
	Error        string   `json:"error,omitempty"`
	DeploymentID string   `json:"deploymentId"`
	Warnings     []string `json:"warnings,omitempty"`
}

// =============================================================================
// Callback Payload
// =============================================================================

// CallbackPayload is the body POSTed to the configured callback URL.
type CallbackPayload struct {
	Success      bool         `json:"success"`
	DeploymentID string       `json:"deploymentId"`
	Stdout       string       `json:"stdout"`
	Stderr       string       `json:"stderr"`
	Error        string       `json:"error,omitempty"`
	Warnings     []string     `json:"warnings,omitempty"`
	StartedAt    time.Time    `json:"startedAt"`
	FinishedAt   time.Time    `json:"finishedAt"`
	Params       DeployParams `json:"params"`
}

// NewCallbackPayload builds the payload for a finished invocation.
func NewCallbackPayload(req DeployRequest, result DeployResult) CallbackPayload {
	return CallbackPayload{
		Success:      result.Success,
		DeploymentID: result.DeploymentID,
		Stdout:       result.Stdout,
		Stderr:       result.Stderr,
		Error:        result.Error,
		Warnings:     result.Warnings,
		StartedAt:    result.StartedAt.UTC(),
		FinishedAt:   result.FinishedAt.UTC(),
		Params:       req.Params(),
	}
}

// =============================================================================
// Deployment Record
// =============================================================================

// DeploymentRecord is the persisted history entry for one invocation.
type DeploymentRecord struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Image      string    `json:"image"`
	Success    bool      `json:"success"`
	Stage      Stage     `json:"stage"`
	Error      string    `json:"error,omitempty"`
	Warnings   []string  `json:"warnings,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// NewDeploymentRecord builds a history record from a result.
func NewDeploymentRecord(name string, result DeployResult) DeploymentRecord {
	return DeploymentRecord{
		ID:         result.DeploymentID,
		Name:       name,
		Image:      result.Image,
		Success:    result.Success,
		Stage:      result.Stage,
		Error:      result.Error,
		Warnings:   result.Warnings,
		StartedAt:  result.StartedAt.UTC(),
		FinishedAt: result.FinishedAt.UTC(),
	}
}

// Duration returns how long the invocation took.
func (r DeploymentRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
