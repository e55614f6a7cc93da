package conversation

import (
	"fmt"
	"strings"
)

// ValidationError is the soft rejection returned by Store mutations: the
// store is left untouched and the caller is expected to surface the problem
// as recoverable feedback rather than crash.
type ValidationError struct {
	Op     string
	NodeID NodeID
	Reason string
}

func (e *ValidationError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("%s: node %s: %s", e.Op, e.NodeID, e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

func newValidationError(op string, id NodeID, reason string) *ValidationError {
	return &ValidationError{Op: op, NodeID: id, Reason: reason}
}

// InvariantViolationError reports structural corruption of the node set:
// more than one root, or more than one active sibling under one parent.
// This should be impossible as long as the Store and Manager are the only
// mutators; callers treat it as fatal.
type InvariantViolationError struct {
	Violations []string
}

func (e *InvariantViolationError) Error() string {
	return "conversation invariants violated: " + strings.Join(e.Violations, "; ")
}
