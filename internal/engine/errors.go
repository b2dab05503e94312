package engine

import (
	"errors"
	"fmt"
)

// RetryableError indicates a transient engine failure worth retrying.
type RetryableError struct {
	StatusCode int
	Message    string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable engine error (status %d): %s", e.StatusCode, truncate(e.Message, 200))
}

// IsRetryable checks if an error is worth retrying.
func IsRetryable(err error) bool {
	var retryErr *RetryableError
	return errors.As(err, &retryErr)
}

// MeshError is a failure of the engine's mesh sequence. Recoverable through
// density escalation up to the step-ratio floor.
type MeshError struct {
	Message string
}

func (e *MeshError) Error() string {
	return "meshing failed: " + truncate(e.Message, 200)
}

// SolveError is a failure of the engine's stationary solve. Recoverable only
// in separate-cells troubleshooting mode.
type SolveError struct {
	Message string
}

func (e *SolveError) Error() string {
	return "solve failed: " + truncate(e.Message, 200)
}

// LifecycleError is a failed session transition (launch, reconnect, snapshot
// reload). Always fatal: the sweep cannot proceed without an engine.
type LifecycleError struct {
	Step string // "save", "teardown", "relaunch", "reconnect", "reload"
	Err  error
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("engine session %s failed: %v", e.Step, e.Err)
}

func (e *LifecycleError) Unwrap() error {
	return e.Err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
