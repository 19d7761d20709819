package deploy

import (
	"errors"
	"fmt"

	"github.com/artpar/relaunch/internal/core/domain"
)

// ErrDeploymentInProgress is returned when another deploy holds the instance name.
var ErrDeploymentInProgress = errors.New("deployment already in progress")

// StageError records the stage in which a deployment failed.
type StageError struct {
	Stage domain.Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
