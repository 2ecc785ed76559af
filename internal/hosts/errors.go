package hosts

import (
	"errors"
	"fmt"
)

// Errors returned by the mutation functions.
var (
	// ErrNotFound indicates no line carries the requested line number.
	ErrNotFound = errors.New("line not found")

	// ErrInvalidEntry indicates entry fields that would not parse back as an entry.
	ErrInvalidEntry = errors.New("invalid entry")
)

// LineError is an error tied to a line number.
type LineError struct {
	Op   string // Operation that failed (update, toggle, add)
	Line int    // Line number, -1 when not yet assigned
	Err  error  // Underlying error
}

// Error implements the error interface.
func (e *LineError) Error() string {
	if e.Line < 0 {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s line %d: %v", e.Op, e.Line, e.Err)
}

// Unwrap returns the underlying error.
func (e *LineError) Unwrap() error {
	return e.Err
}

// IsNotFound returns true if the error indicates a missing line.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
