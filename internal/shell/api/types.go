package api

import "github.com/artpar/relaunch/internal/core/domain"

// =============================================================================
// Response Types
// =============================================================================

// ListDeploymentsResponse is the response for listing deployment history.
type ListDeploymentsResponse struct {
	Deployments []domain.DeploymentRecord `json:"deployments"`
	Limit       int                       `json:"limit"`
	Offset      int                       `json:"offset"`
}

// ErrorResponse is the error response format.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Field string `json:"field,omitempty"`
}

// HealthResponse is the health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// ReadyResponse is the readiness check response.
type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
