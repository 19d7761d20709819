package domain

import "errors"

// =============================================================================
// Deployment Stages
// =============================================================================

// ErrInvalidTransition is returned when a stage transition is not allowed.
var ErrInvalidTransition = errors.New("invalid stage transition")

// Stage is a step of the replace-and-start state machine.
type Stage string

const (
	StagePending   Stage = "pending"
	StagePulling   Stage = "pulling"
	StageReplacing Stage = "replacing"
	StageCreating  Stage = "creating"
	StageStarting  Stage = "starting"
	StagePruning   Stage = "pruning"
	StageDone      Stage = "done"
	StageFailed    Stage = "failed"
)

// validTransitions defines the allowed stage transitions.
// FAILED is reachable from every non-terminal stage and is handled separately.
var validTransitions = map[Stage][]Stage{
	StagePending:   {StagePulling},
	StagePulling:   {StageReplacing},
	StageReplacing: {StageCreating},
	StageCreating:  {StageStarting},
	StageStarting:  {StagePruning, StageDone},
	StagePruning:   {StageDone},
	StageDone:      {}, // Terminal state
	StageFailed:    {}, // Terminal state
}

// IsTerminal reports whether no further transitions are possible.
func (s Stage) IsTerminal() bool {
	return s == StageDone || s == StageFailed
}

// Next returns the stage that follows s on the success path.
// Pruning is only entered when prune is true.
func (s Stage) Next(prune bool) Stage {
	switch s {
	case StagePending:
		return StagePulling
	case StagePulling:
		return StageReplacing
	case StageReplacing:
		return StageCreating
	case StageCreating:
		return StageStarting
	case StageStarting:
		if prune {
			return StagePruning
		}
		return StageDone
	case StagePruning:
		return StageDone
	default:
		return s
	}
}

// ValidateTransition checks if a stage transition is valid.
func ValidateTransition(from, to Stage) error {
	if to == StageFailed {
		if from.IsTerminal() {
			return ErrInvalidTransition
		}
		return nil
	}

	allowed, exists := validTransitions[from]
	if !exists {
		return ErrInvalidTransition
	}

	for _, s := range allowed {
		if s == to {
			return nil
		}
	}

	return ErrInvalidTransition
}
