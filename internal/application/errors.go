// internal/application/errors.go
package application

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound               = errors.New("application not found")
	ErrAlreadyExists          = errors.New("applicant already has an open application")
	ErrConflict               = errors.New("version conflict")
	ErrApplicationFinalized   = errors.New("application is finalized")
	ErrConcurrentModification = errors.New("application was modified concurrently")
	ErrUnauthorizedActor      = errors.New("actor is not permitted to perform this transition")
	ErrInvalidTransition      = errors.New("invalid transition")
	ErrIncompleteApplication  = errors.New("application is incomplete")
	ErrInvalidPayload         = errors.New("invalid transition payload")
	ErrPersistence            = errors.New("persistence failure")
)

// InvalidTransitionError reports a move missing from the transition table.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %s to %s", e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// IncompleteApplicationError lists what a submission is missing.
type IncompleteApplicationError struct {
	MissingFields []string
}

func (e *IncompleteApplicationError) Error() string {
	return fmt.Sprintf("application incomplete: %s", strings.Join(e.MissingFields, ", "))
}

func (e *IncompleteApplicationError) Is(target error) bool {
	return target == ErrIncompleteApplication
}

// ValidationError reports a payload field that fails a transition's requirements.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidPayload
}

// PersistenceError wraps a storage fault during a commit or read.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}
