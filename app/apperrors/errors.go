// Package apperrors defines the error taxonomy shared by the order services
// and their transports.
//
// Three kinds of errors reach callers:
//   - ValidationError: the request was rejected by a business rule, including
//     TransitionError for illegal status changes
//   - NotFoundError: a referenced order or session does not exist
//   - anything else: infrastructure failure, wrapped with fmt.Errorf and %w
//
// Transports map the first two to user-visible responses and treat the rest
// as internal failures.
package apperrors

import (
	"errors"
	"fmt"
)

// Re-exported so callers only need this package for error checks.
var (
	Is  = errors.Is
	As  = errors.As
	New = errors.New
)

var (
	// ErrNotFound matches any NotFoundError.
	ErrNotFound = New("not found")
	// ErrValidation matches any ValidationError or TransitionError.
	ErrValidation = New("validation failed")
	// ErrInvalidTransition matches any TransitionError.
	ErrInvalidTransition = New("invalid status transition")
	// ErrOrderIDCollision is returned when an insert loses the race for an order id.
	ErrOrderIDCollision = New("order id already taken")
	// ErrEmptySession is returned when aggregating a session with no orders.
	ErrEmptySession = New("session has no orders")
)

// NotFoundError represents a resource that could not be found.
type NotFoundError struct {
	ResourceType string
	ResourceID   string
}

func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{ResourceType: resourceType, ResourceID: resourceID}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s '%s' not found", e.ResourceType, e.ResourceID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ValidationError represents invalid input or a request that breaks a business rule.
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(message string) *ValidationError {
	return &ValidationError{Message: message}
}

// WithField records which input field was rejected.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// TransitionError is returned when a status change is not in the transition table.
type TransitionError struct {
	Current   string
	Requested string
}

func NewTransitionError(current, requested string) *TransitionError {
	return &TransitionError{Current: current, Requested: requested}
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("Invalid status transition from %s to %s", e.Current, e.Requested)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition || target == ErrValidation
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}
