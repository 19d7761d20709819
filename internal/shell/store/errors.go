// Package store provides persistence for deployment history.
package store

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrNotFound is returned when no deployment has the requested ID.
	ErrNotFound = errors.New("deployment not found")

	// ErrDuplicateID is returned when a deployment ID is recorded twice.
	ErrDuplicateID = errors.New("deployment already recorded")

	ErrConnectionFailed = errors.New("database connection failed")
	ErrMigrationFailed  = errors.New("database migration failed")

	// ErrInvalidData is returned when the stored warnings column is not a JSON string array.
	ErrInvalidData = errors.New("invalid stored data")

	ErrTxFailed = errors.New("transaction failed")
)

// IsNotFound reports whether err means the deployment does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// StoreError wraps errors with additional context.
type StoreError struct {
	Op      string // e.g. "GetDeployment"
	Entity  string // "deployment" or empty for database-level failures
	ID      string
	Message string
	Err     error
}

func (e *StoreError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s %s: %s", e.Op, e.Entity, e.ID, e.Message)
	}
	if e.Entity != "" {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Entity, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError.
func NewStoreError(op, entity, id, message string, err error) *StoreError {
	return &StoreError{
		Op:      op,
		Entity:  entity,
		ID:      id,
		Message: message,
		Err:     err,
	}
}
