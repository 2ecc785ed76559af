// Package watcher detects external modifications of a single file.
//
// Raw notifications from a Source restart a debounce timer. When the timer
// fires the watcher stats the file and reports a change only if its
// modification time differs from the recorded baseline. Bursts of editor
// writes therefore produce one Changed callback, and touches that leave the
// mtime alone produce none.
package watcher

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dshills/hostkeep/internal/logging"
	"github.com/dshills/hostkeep/internal/notify"
	"github.com/dshills/hostkeep/internal/vfs"
)

// Common errors returned by watcher operations.
var (
	ErrWatcherClosed      = errors.New("watcher is closed")
	ErrSubscriptionFailed = errors.New("change subscription failed")
)

// DefaultDelay is the debounce window used when none is configured.
const DefaultDelay = 300 * time.Millisecond

// State is the watcher lifecycle state.
type State int

const (
	// StateIdle means no subscription is active.
	StateIdle State = iota
	// StateWatching means notifications are being received.
	StateWatching
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWatching:
		return "watching"
	default:
		return "unknown"
	}
}

// PathError wraps an error observed while watching a path.
type PathError struct {
	Op   string
	Path string
	Err  error
}

// Error implements the error interface.
func (e *PathError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *PathError) Unwrap() error {
	return e.Err
}

// Watcher watches one file.
type Watcher struct {
	path   string
	fs     vfs.FS
	source Source
	delay  time.Duration
	logger *logging.Logger

	mu       sync.Mutex
	state    State
	closed   bool
	gen      uint64 // Bumped on every Start and Stop; stale callbacks compare it
	sub      Subscription
	stop     chan struct{}
	timer    *time.Timer
	baseline time.Time
	wg       sync.WaitGroup

	// Held while delivering callbacks so Stop can wait for them.
	emitMu  sync.Mutex
	changes *notify.Notifier[string]
	errs    *notify.Notifier[error]
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithFS sets the file system used to stat the file.
func WithFS(fsys vfs.FS) Option {
	return func(w *Watcher) {
		w.fs = fsys
	}
}

// WithSource sets the notification source.
func WithSource(s Source) Option {
	return func(w *Watcher) {
		w.source = s
	}
}

// WithDelay sets the debounce window.
func WithDelay(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.delay = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(w *Watcher) {
		w.logger = l
	}
}

// New creates an idle Watcher for path.
func New(path string, opts ...Option) *Watcher {
	w := &Watcher{
		path:    path,
		fs:      vfs.NewOSFS(),
		source:  NewFSNotifySource(),
		delay:   DefaultDelay,
		logger:  logging.Nop(),
		changes: notify.New[string](),
		errs:    notify.New[error](),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.WithComponent("watcher").WithField("path", path)
	return w
}

// OnChange registers a callback for detected changes. Callbacks must not
// call Stop or Close.
func (w *Watcher) OnChange(fn func(path string)) *notify.Subscription {
	return w.changes.Subscribe(fn)
}

// OnError registers a callback for watch errors. Callbacks must not call
// Stop or Close.
func (w *Watcher) OnError(fn func(err error)) *notify.Subscription {
	return w.errs.Subscribe(fn)
}

// State returns the current state.
func (w *Watcher) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Start subscribes to notifications. Starting a watching Watcher is a no-op.
// On failure the Watcher stays idle.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWatcherClosed
	}
	if w.state == StateWatching {
		return nil
	}

	w.baseline = w.modTime()

	sub, err := w.source.Subscribe(w.path)
	if err != nil {
		return &PathError{Op: "subscribe", Path: w.path, Err: fmt.Errorf("%w: %w", ErrSubscriptionFailed, err)}
	}

	w.gen++
	w.state = StateWatching
	w.sub = sub
	w.stop = make(chan struct{})

	w.wg.Add(1)
	go w.processLoop(w.gen, sub, w.stop)

	w.logger.Debug("started watching")
	return nil
}

// Stop cancels any pending debounce and ends the subscription. No callback
// runs after Stop returns. Stopping an idle Watcher is a no-op.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.state != StateWatching {
		w.mu.Unlock()
		return
	}
	sub := w.detach()
	close(w.stop)
	w.stop = nil
	w.mu.Unlock()

	if err := sub.Close(); err != nil {
		w.logger.Warn("close subscription: %v", err)
	}
	w.wg.Wait()

	// Wait out a callback that passed its generation check before detach.
	w.emitMu.Lock()
	w.emitMu.Unlock() //nolint:staticcheck // fence for in-flight callbacks

	w.logger.Debug("stopped watching")
}

// Close stops the Watcher and releases its observers. A closed Watcher
// cannot be restarted.
func (w *Watcher) Close() {
	w.Stop()

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.mu.Unlock()

	w.changes.Close()
	w.errs.Close()
}

// Rebaseline records the file's current modification time as unchanged.
func (w *Watcher) Rebaseline() {
	mt := w.modTime()

	w.mu.Lock()
	w.baseline = mt
	w.mu.Unlock()
}

// detach moves to Idle and invalidates outstanding callbacks. Caller holds mu.
func (w *Watcher) detach() Subscription {
	w.gen++
	w.state = StateIdle
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	sub := w.sub
	w.sub = nil
	return sub
}

// modTime returns the file's modification time, or the zero time when it
// cannot be stat'ed.
func (w *Watcher) modTime() time.Time {
	info, err := w.fs.Stat(w.path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

func (w *Watcher) processLoop(gen uint64, sub Subscription, stop <-chan struct{}) {
	defer w.wg.Done()

	events, errs := sub.Events(), sub.Errors()
	for {
		select {
		case <-stop:
			return

		case n, ok := <-events:
			if !ok {
				w.subscriptionLost(gen)
				return
			}
			w.logger.Debug("notification %s", n.Op)
			w.schedule(gen)

		case err, ok := <-errs:
			if !ok {
				w.subscriptionLost(gen)
				return
			}
			w.emitError(gen, &PathError{Op: "watch", Path: w.path, Err: err})
		}
	}
}

// schedule restarts the debounce timer.
func (w *Watcher) schedule(gen uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if gen != w.gen {
		return
	}
	if w.timer == nil {
		w.timer = time.AfterFunc(w.delay, func() { w.fire(gen) })
		return
	}
	w.timer.Reset(w.delay)
}

// fire runs when the debounce window closes.
func (w *Watcher) fire(gen uint64) {
	info, err := w.fs.Stat(w.path)
	if err != nil {
		w.emitError(gen, &PathError{Op: "stat", Path: w.path, Err: err})
		return
	}

	w.mu.Lock()
	if gen != w.gen || info.ModTime().Equal(w.baseline) {
		w.mu.Unlock()
		return
	}
	w.baseline = info.ModTime()
	w.mu.Unlock()

	w.emitChange(gen)
}

// subscriptionLost handles a subscription that ended without Stop.
func (w *Watcher) subscriptionLost(gen uint64) {
	w.emitMu.Lock()
	defer w.emitMu.Unlock()

	w.mu.Lock()
	if gen != w.gen {
		w.mu.Unlock()
		return
	}
	sub := w.detach()
	close(w.stop)
	w.stop = nil
	w.mu.Unlock()

	_ = sub.Close()
	w.logger.Warn("subscription ended unexpectedly")
	w.errs.Publish(&PathError{Op: "watch", Path: w.path, Err: ErrSubscriptionFailed})
}

func (w *Watcher) emitChange(gen uint64) {
	w.emitMu.Lock()
	defer w.emitMu.Unlock()

	if !w.current(gen) {
		return
	}
	w.logger.Debug("change detected")
	w.changes.Publish(w.path)
}

func (w *Watcher) emitError(gen uint64, err error) {
	w.emitMu.Lock()
	defer w.emitMu.Unlock()

	if !w.current(gen) {
		return
	}
	w.logger.Warn("%v", err)
	w.errs.Publish(err)
}

func (w *Watcher) current(gen uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return gen == w.gen && w.state == StateWatching
}
