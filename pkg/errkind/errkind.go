// Package errkind names the failure kinds activities report to workflows.
// Kinds listed in NonRetryable short-circuit retry policies.
package errkind

import (
	"fmt"

	"github.com/agentarea/agentarea/pkg/durable"
	"github.com/agentarea/agentarea/pkg/persistence"
)

const (
	Validation         = "ValidationError"
	NotFound           = "NotFoundError"
	Disabled           = "TriggerDisabled"
	Auth               = "AuthError"
	RateLimited        = "RateLimited"
	CircuitBreakerOpen = "CircuitBreakerOpen"
	Database           = "DatabaseError"
	HardDatabase       = "HardDatabaseError"
	LLMProvider        = "LLMProviderError"
	ToolExecution      = "ToolExecutionError"
)

// NonRetryable are the kinds no activity retries.
var NonRetryable = []string{Validation, NotFound, Disabled, Auth}

// NonRetryableWith returns NonRetryable extended by extra kinds.
func NonRetryableWith(extra ...string) []string {
	return append(append([]string(nil), NonRetryable...), extra...)
}

func NewValidation(format string, args ...any) error {
	return durable.NewNonRetryableError(Validation, fmt.Sprintf(format, args...), nil)
}

func NewNotFound(cause error) error {
	return durable.NewNonRetryableError(NotFound, "", cause)
}

func NewDisabled(triggerID string) error {
	return durable.NewNonRetryableError(Disabled, fmt.Sprintf("trigger %s is disabled", triggerID), nil)
}

func NewCircuitBreakerOpen(triggerID string, failures int) error {
	return durable.NewNonRetryableError(CircuitBreakerOpen,
		fmt.Sprintf("trigger %s has %d consecutive failures", triggerID, failures), nil)
}

func NewAuth(message string, cause error) error {
	return durable.NewNonRetryableError(Auth, message, cause)
}

// FromRepository classifies a persistence error. Missing entities and hard
// database errors are final, everything else is retried.
func FromRepository(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case persistence.IsNotFound(err):
		return durable.NewNonRetryableError(NotFound, "", err)
	case persistence.IsHardDatabaseError(err):
		return durable.NewNonRetryableError(HardDatabase, "", err)
	default:
		return durable.NewApplicationError(Database, "", err)
	}
}
