package reconcile

import (
	"errors"
	"fmt"
	"strings"
)

// RuntimeError represents an error or warning raised during reconciliation.
//
// Only CYCLE_DETECTED rejects a pass. The other codes are recovered from
// and reported on PassResult.Warnings.
type RuntimeError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// NodeID identifies the affected node or Environment, if any.
	NodeID string

	// PassToken identifies the reconciliation pass.
	PassToken string

	// Path is the cycle path for CYCLE_DETECTED.
	Path []string

	// Err is the underlying cause.
	Err error
}

// ErrorCode categorizes runtime errors.
type ErrorCode string

const (
	// ErrCodeCycleDetected indicates a referential cycle within one snapshot.
	ErrCodeCycleDetected ErrorCode = "CYCLE_DETECTED"

	// ErrCodeMalformedDescriptor indicates a descriptor field could not be
	// parsed and was replaced with a best-effort default.
	ErrCodeMalformedDescriptor ErrorCode = "MALFORMED_DESCRIPTOR"

	// ErrCodeUnknownModulePath indicates a missing ancestor Environment that
	// was synthesized.
	ErrCodeUnknownModulePath ErrorCode = "UNKNOWN_MODULE_PATH"

	// ErrCodeStaleConfirmation indicates a dependency confirmation for a node
	// that no longer exists.
	ErrCodeStaleConfirmation ErrorCode = "STALE_CONFIRMATION"

	// ErrCodeDanglingDelete indicates deletion of a node still referenced by
	// another record of the same snapshot.
	ErrCodeDanglingDelete ErrorCode = "DANGLING_DELETE"

	// ErrCodeEngineReported carries an error message sent by the execution
	// engine alongside a snapshot.
	ErrCodeEngineReported ErrorCode = "ENGINE_ERROR"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if len(e.Path) > 1 {
		msg += " (" + strings.Join(e.Path, " -> ") + ")"
	}
	if e.PassToken != "" {
		msg += fmt.Sprintf(" (pass=%s)", e.PassToken)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// CodeOf returns the code of the first RuntimeError in err's chain.
func CodeOf(err error) (ErrorCode, bool) {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code, true
	}
	return "", false
}

// IsCycleError returns true if the error is a cycle detection error.
// Uses errors.As to handle wrapped errors.
func IsCycleError(err error) bool {
	code, ok := CodeOf(err)
	return ok && code == ErrCodeCycleDetected
}

// IsStaleConfirmation returns true if the error reports a stale confirmation.
func IsStaleConfirmation(err error) bool {
	code, ok := CodeOf(err)
	return ok && code == ErrCodeStaleConfirmation
}

// NewCycleError creates a RuntimeError for a dependency cycle.
func NewCycleError(passToken, nodeID string, path []string, cause error) *RuntimeError {
	return &RuntimeError{
		Code:      ErrCodeCycleDetected,
		Message:   fmt.Sprintf("circular dependency detected: %s", nodeID),
		NodeID:    nodeID,
		PassToken: passToken,
		Path:      path,
		Err:       cause,
	}
}

func newWarning(code ErrorCode, nodeID, message string, cause error) *RuntimeError {
	return &RuntimeError{
		Code:    code,
		Message: message,
		NodeID:  nodeID,
		Err:     cause,
	}
}
