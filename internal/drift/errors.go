package drift

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no entity exists for the requested ID.
	ErrNotFound = errors.New("entity not found")
	// ErrAlreadyExists is returned when adding an entity whose ID is taken.
	ErrAlreadyExists = errors.New("entity already exists")
	// ErrNotInitialized is returned when a store is used before Initialize.
	ErrNotInitialized = errors.New("store not initialized")
)

// InvalidTransitionError reports a lifecycle move the transition table forbids.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition: %s -> %s", e.From, e.To)
}

// IsInvalidTransition reports whether err is an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var ite *InvalidTransitionError
	return errors.As(err, &ite)
}
