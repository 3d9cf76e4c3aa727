package schema

import (
	"errors"
	"fmt"
)

// Error codes for structured error reporting.
const (
	ErrCodeDefinition         = "DEFINITION_ERROR"
	ErrCodeUnknownType        = "UNKNOWN_TYPE"
	ErrCodeUnknownNode        = "UNKNOWN_NODE"
	ErrCodeUnknownPort        = "UNKNOWN_PORT"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeConnectionRejected = "CONNECTION_REJECTED"
	ErrCodeInvalidTransition  = "INVALID_TRANSITION"
	ErrCodeInvalidZoom        = "INVALID_ZOOM"
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeExpression         = "EXPRESSION_ERROR"
	ErrCodeStore              = "STORE_ERROR"
	ErrCodeCycleDetected      = "CYCLE_DETECTED"
	ErrCodeNodeFailed         = "NODE_FAILED"
	ErrCodeRunNotCompleted    = "RUN_NOT_COMPLETED"
)

// FlowError is the structured error type for all flowcanvas operations.
type FlowError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	NodeID  string         `json:"node_id,omitempty"`
	Cause   error          `json:"-"`
}

func (e *FlowError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("[%s] node %s: %s", e.Code, e.NodeID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *FlowError) Unwrap() error {
	return e.Cause
}

// NewError creates a new FlowError.
func NewError(code, message string) *FlowError {
	return &FlowError{Code: code, Message: message}
}

// NewErrorf creates a new FlowError with a formatted message.
func NewErrorf(code, format string, args ...any) *FlowError {
	return &FlowError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithNode attaches a node ID to the error.
func (e *FlowError) WithNode(nodeID string) *FlowError {
	e.NodeID = nodeID
	return e
}

// WithCause attaches an underlying cause.
func (e *FlowError) WithCause(err error) *FlowError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *FlowError) WithDetails(details map[string]any) *FlowError {
	e.Details = details
	return e
}

// CodeOf returns the code of the first FlowError in err's chain, or "".
func CodeOf(err error) string {
	var fe *FlowError
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code string) bool {
	return CodeOf(err) == code
}
