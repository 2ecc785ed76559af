package writer

import (
	"errors"
	"fmt"
)

// Errors reported through Result.Err.
var (
	// ErrBackupFailed indicates the pre-write copy failed; the target was not touched.
	ErrBackupFailed = errors.New("backup failed")

	// ErrWriteFailed indicates the file replacement failed.
	ErrWriteFailed = errors.New("write failed")

	// ErrNoExecutor indicates an elevated write was requested without a privileged executor.
	ErrNoExecutor = errors.New("no privileged executor configured")
)

// PathError represents a write pipeline error associated with a file path.
type PathError struct {
	Op   string // Stage that failed (backup, replace)
	Path string // File path
	Err  error  // Underlying error
}

// Error implements the error interface.
func (e *PathError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *PathError) Unwrap() error {
	return e.Err
}

func backupError(path string, err error) error {
	return &PathError{Op: "backup", Path: path, Err: fmt.Errorf("%w: %w", ErrBackupFailed, err)}
}

func writeError(path string, err error) error {
	return &PathError{Op: "replace", Path: path, Err: fmt.Errorf("%w: %w", ErrWriteFailed, err)}
}
