package durable

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

var (
	ErrWorkflowAlreadyStarted = errors.New("workflow already started")
	ErrWorkflowNotFound       = errors.New("workflow not found")
	ErrWorkflowNotRunning     = errors.New("workflow not running")
	ErrQueryNotFound          = errors.New("query handler not registered")
	ErrUnknownWorkflow        = errors.New("workflow type not registered")
	ErrNondeterministic       = errors.New("workflow history does not match workflow code")
	ErrEngineStopped          = errors.New("engine stopped")
)

// Error types assigned by the engine itself. Activities define their own.
const (
	ErrTypeGeneric          = "GenericError"
	ErrTypeTimeout          = "TimeoutError"
	ErrTypeHeartbeatTimeout = "HeartbeatTimeout"
	ErrTypePanic            = "PanicError"
	ErrTypeInvalidInput     = "InvalidInput"
	ErrTypeUnknownActivity  = "UnknownActivity"
)

// ApplicationError is the classified failure of an activity or workflow.
type ApplicationError struct {
	Type         string
	Message      string
	NonRetryable bool
	Cause        error
}

func NewApplicationError(errType, message string, cause error) *ApplicationError {
	return &ApplicationError{Type: errType, Message: message, Cause: cause}
}

func NewNonRetryableError(errType, message string, cause error) *ApplicationError {
	return &ApplicationError{Type: errType, Message: message, NonRetryable: true, Cause: cause}
}

func (e *ApplicationError) Error() string {
	msg := e.message()

	if e.Type == "" {
		return msg
	}

	return fmt.Sprintf("%s (type: %s)", msg, e.Type)
}

// message is the error text without the type suffix.
func (e *ApplicationError) message() string {
	if e.Cause == nil {
		return e.Message
	}

	if e.Message == "" {
		return e.Cause.Error()
	}

	return e.Message + ": " + e.Cause.Error()
}

func (e *ApplicationError) Unwrap() error {
	return e.Cause
}

// ActivityError is returned to workflow code when an activity fails for good.
type ActivityError struct {
	ActivityName string
	Attempts     int
	Cause        *ApplicationError
}

func (e *ActivityError) Error() string {
	return fmt.Sprintf("activity %s failed after %d attempt(s): %v", e.ActivityName, e.Attempts, e.Cause)
}

func (e *ActivityError) Unwrap() error {
	return e.Cause
}

// WorkflowExecutionError is returned by Engine.GetResult for failed runs.
type WorkflowExecutionError struct {
	WorkflowID string
	RunID      string
	Cause      *ApplicationError
}

func (e *WorkflowExecutionError) Error() string {
	return fmt.Sprintf("workflow %s (run %s) failed: %v", e.WorkflowID, e.RunID, e.Cause)
}

func (e *WorkflowExecutionError) Unwrap() error {
	return e.Cause
}

// Failure is the serialized form of an ApplicationError kept in history.
type Failure struct {
	Type         string `json:"type"`
	Message      string `json:"message"`
	NonRetryable bool   `json:"non_retryable,omitempty"`
}

func (f *Failure) Err() *ApplicationError {
	return &ApplicationError{Type: f.Type, Message: f.Message, NonRetryable: f.NonRetryable}
}

// FailureFromError classifies any error. Unclassified errors become GenericError.
func FailureFromError(err error) *Failure {
	var appErr *ApplicationError
	if errors.As(err, &appErr) {
		return &Failure{Type: appErr.Type, Message: appErr.message(), NonRetryable: appErr.NonRetryable}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &Failure{Type: ErrTypeTimeout, Message: err.Error()}
	}

	if errors.Is(err, ErrNondeterministic) {
		return &Failure{Type: ErrTypeGeneric, Message: err.Error(), NonRetryable: true}
	}

	return &Failure{Type: ErrTypeGeneric, Message: err.Error()}
}

// ErrorType returns the application error type carried by err, if any.
func ErrorType(err error) string {
	var appErr *ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Type
	}

	return ""
}

// HasErrorType reports whether err carries one of the given application error types.
func HasErrorType(err error, types ...string) bool {
	t := ErrorType(err)

	return t != "" && slices.Contains(types, t)
}
