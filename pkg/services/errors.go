// Package services provides standardized error types for service layer operations.
package services

import (
	"errors"
	"fmt"
)

// Business logic errors. These indicate client errors (4xx responses).
var (
	// Validation errors (400 Bad Request).
	ErrInvalidWorkflow  = errors.New("invalid workflow definition")
	ErrInvalidRule      = errors.New("invalid automation rule")
	ErrWorkflowNil      = errors.New("workflow cannot be nil")
	ErrRuleNil          = errors.New("automation rule cannot be nil")
	ErrNameRequired     = errors.New("name is required")
	ErrNodesRequired    = errors.New("workflow must have at least one node")
	ErrTriggerRequired  = errors.New("workflow must have exactly one trigger node")
	ErrUnknownNodeType  = errors.New("unknown node type")
	ErrInvalidNodeData  = errors.New("invalid node configuration")
	ErrInvalidTrigger   = errors.New("invalid trigger configuration")
	ErrTemplateRequired = errors.New("template id is required")
)

// ServiceError wraps service-level errors with operation context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsValidationError checks if an error is a validation error that should
// return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidWorkflow) ||
		errors.Is(err, ErrInvalidRule) ||
		errors.Is(err, ErrWorkflowNil) ||
		errors.Is(err, ErrRuleNil) ||
		errors.Is(err, ErrNameRequired) ||
		errors.Is(err, ErrNodesRequired) ||
		errors.Is(err, ErrTriggerRequired) ||
		errors.Is(err, ErrUnknownNodeType) ||
		errors.Is(err, ErrInvalidNodeData) ||
		errors.Is(err, ErrInvalidTrigger) ||
		errors.Is(err, ErrTemplateRequired)
}
