package validation

import (
	"regexp"

	"github.com/artpar/relaunch/internal/core/domain"
)

// =============================================================================
// Deploy Request Validation
// =============================================================================

// instanceNameRegex mirrors the engine's container-name rule.
var instanceNameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)

// ValidInstanceName reports whether name is usable as a container name.
func ValidInstanceName(name string) bool {
	return instanceNameRegex.MatchString(name)
}

// ValidateDeployRequest validates required fields for a deploy request.
// Returns the field name and error message if validation fails.
// Returns empty strings if all fields are valid.
//
// Volume and environment entries are not checked here; malformed ones are
// dropped during planning and reported as warnings.
//
// Example:
//
//	field, msg := ValidateDeployRequest(req)
//	if field != "" {
//	    // Handle validation error
//	}
func ValidateDeployRequest(req domain.DeployRequest) (field, message string) {
	if req.Name == "" {
		return "name", "name is required"
	}
	if !ValidInstanceName(req.Name) {
		return "name", "name may only contain letters, digits, '_', '.' and '-' and must start with a letter or digit"
	}
	if req.Repo == "" {
		return "repo", "repo is required"
	}
	if req.Version == "" {
		return "version", "version is required"
	}
	if !validPort(req.Port) {
		return "port", "port must be between 1 and 65535"
	}
	if !validPort(req.ContainerPort) {
		return "containerPort", "containerPort must be between 1 and 65535"
	}
	return "", ""
}

func validPort(p int) bool {
	return p > 0 && p <= 65535
}
