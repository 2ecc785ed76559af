package app

import (
	"errors"
	"fmt"
)

// ErrInitialization indicates an initialization failure.
var ErrInitialization = errors.New("initialization failed")

// InitError reports which component failed to start.
type InitError struct {
	Component string // Component name (e.g., "config", "engine")
	Err       error  // Underlying error
}

func (e *InitError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("init %s: %v", e.Component, e.Err)
}

func (e *InitError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches ErrInitialization as well as the wrapped error.
func (e *InitError) Is(target error) bool {
	if e == nil {
		return false
	}
	return target == ErrInitialization
}
