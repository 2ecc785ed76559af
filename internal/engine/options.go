package engine

import (
	"time"

	"github.com/dshills/hostkeep/internal/logging"
	"github.com/dshills/hostkeep/internal/vfs"
	"github.com/dshills/hostkeep/internal/watcher"
	"github.com/dshills/hostkeep/internal/writer"
)

// Default configuration values.
const (
	DefaultEventBuffer = 64
)

// Config holds the per-instance settings.
type Config struct {
	// Path is the hosts file the engine owns.
	Path string

	// Debounce is the watcher's quiet period; zero uses watcher.DefaultDelay.
	Debounce time.Duration

	// Write is applied to every mutation's write.
	Write writer.Options
}

// Option configures an Engine during creation.
type Option func(*Engine)

// WithFS sets the file system documents are read from.
func WithFS(fsys vfs.FS) Option {
	return func(e *Engine) {
		e.fs = fsys
	}
}

// WithWriter sets the writer used by mutations.
func WithWriter(w *writer.Writer) Option {
	return func(e *Engine) {
		e.writer = w
	}
}

// WithSource sets the watcher's notification source.
func WithSource(s watcher.Source) Option {
	return func(e *Engine) {
		e.source = s
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithEventBuffer sets the event queue size.
func WithEventBuffer(size int) Option {
	return func(e *Engine) {
		if size > 0 {
			e.eventBuffer = size
		}
	}
}
