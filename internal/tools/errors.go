// Package tools provides the capability registry and execution framework.
//
// This file defines sentinel error types for registry operations.
package tools

import "fmt"

// ErrToolNotFound is returned when an operation targets a capability
// that is not present in the registry. Execute callers turn it into a
// tool-role error message; Update callers treat it as fatal to that
// operation, not to the session.
type ErrToolNotFound struct {
	ToolName string
}

// Error implements the error interface.
func (e *ErrToolNotFound) Error() string {
	return fmt.Sprintf("tool %q is not registered", e.ToolName)
}
