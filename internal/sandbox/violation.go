// Package sandbox implements the resource-bounded execution governor for one
// WASM module run: header validation, memory/fuel/time accounting, import
// allow-listing and violation logging.
package sandbox

import (
	"fmt"
	"time"
)

// ViolationKind is the closed set of breach categories. Hosts match on it
// exhaustively to decide how to react.
type ViolationKind int

const (
	// MemoryLimit marks an allocation or module footprint over MaxMemory.
	MemoryLimit ViolationKind = iota
	// FuelLimit marks fuel consumption over MaxFuel.
	FuelLimit
	// TimeLimit marks elapsed execution time over MaxExecutionTime.
	TimeLimit
	// InvalidModule marks a module that failed header validation.
	InvalidModule
	// ImportDenied marks a host-function registration outside the allow-list.
	ImportDenied
	// ExportDenied marks a module export outside the allow-list.
	ExportDenied
)

// String returns a stable name for the violation kind.
func (k ViolationKind) String() string {
	switch k {
	case MemoryLimit:
		return "memory_limit"
	case FuelLimit:
		return "fuel_limit"
	case TimeLimit:
		return "time_limit"
	case InvalidModule:
		return "invalid_module"
	case ImportDenied:
		return "import_denied"
	case ExportDenied:
		return "export_denied"
	default:
		return "unknown"
	}
}

// Violation is one append-only record of a breached ceiling or access rule.
// Records are kept even when the triggering call also returned an error, so
// post-mortem inspection does not depend on the caller having captured the
// return value.
type Violation struct {
	Kind        ViolationKind
	Description string
	Timestamp   time.Time
	Blocked     bool
}

// ViolationError is the error returned when a sandbox call is refused. The
// matching Violation record is appended to the log independently.
type ViolationError struct {
	Kind        ViolationKind
	Description string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("sandbox violation (%s): %s", e.Kind, e.Description)
}

func newViolationError(kind ViolationKind, format string, args ...any) *ViolationError {
	return &ViolationError{
		Kind:        kind,
		Description: fmt.Sprintf(format, args...),
	}
}
