package watcher

import (
	"errors"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Op represents the kind of raw file system notification.
type Op uint32

const (
	// OpCreate indicates the file was created, including by rename onto it.
	OpCreate Op = 1 << iota
	// OpWrite indicates the file was written to.
	OpWrite
	// OpRemove indicates the file was removed.
	OpRemove
	// OpRename indicates the file was renamed away.
	OpRename
	// OpChmod indicates file attributes changed.
	OpChmod
)

// String returns a human-readable representation of the operation.
func (op Op) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpWrite:
		return "WRITE"
	case OpRemove:
		return "REMOVE"
	case OpRename:
		return "RENAME"
	case OpChmod:
		return "CHMOD"
	default:
		return "UNKNOWN"
	}
}

// Has returns true if the operation includes the given op.
func (op Op) Has(o Op) bool {
	return op&o == o
}

// Notification is a raw, undebounced change signal for the watched file.
type Notification struct {
	Path string
	Op   Op
}

// Subscription delivers raw notifications for one path. Both channels are
// closed when the subscription ends, whether through Close or a failure of
// the underlying mechanism.
type Subscription interface {
	Events() <-chan Notification
	Errors() <-chan error
	Close() error
}

// Source creates subscriptions to file change notifications.
type Source interface {
	Subscribe(path string) (Subscription, error)
}

// notificationBuffer is the per-subscription channel capacity. Overflowing
// notifications are dropped; the debounce window coalesces them anyway.
const notificationBuffer = 16

// FSNotifySource implements Source using fsnotify.
//
// It watches the file's parent directory and filters to the exact path, so
// replacements done by renaming a temporary file are still observed.
type FSNotifySource struct{}

// NewFSNotifySource creates a new fsnotify-based source.
func NewFSNotifySource() *FSNotifySource {
	return &FSNotifySource{}
}

// Subscribe implements Source.
func (s *FSNotifySource) Subscribe(path string) (Subscription, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(absPath)); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	sub := &fsnotifySubscription{
		watcher: fsw,
		path:    absPath,
		events:  make(chan Notification, notificationBuffer),
		errors:  make(chan error, notificationBuffer),
		done:    make(chan struct{}),
	}
	sub.wg.Add(1)
	go sub.processLoop()
	return sub, nil
}

type fsnotifySubscription struct {
	watcher *fsnotify.Watcher
	path    string

	events chan Notification
	errors chan error

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

func (s *fsnotifySubscription) Events() <-chan Notification { return s.events }

func (s *fsnotifySubscription) Errors() <-chan error { return s.errors }

// Close stops the subscription. It is safe to call more than once.
func (s *fsnotifySubscription) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.closeErr = s.watcher.Close()
		s.wg.Wait()
	})
	return s.closeErr
}

// processLoop forwards events for the watched path until the subscription
// is closed or fsnotify shuts down.
func (s *fsnotifySubscription) processLoop() {
	defer s.wg.Done()
	defer close(s.errors)
	defer close(s.events)

	for {
		select {
		case <-s.done:
			return

		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != s.path {
				continue
			}
			op := convertOp(ev.Op)
			if op == 0 {
				continue
			}
			select {
			case s.events <- Notification{Path: s.path, Op: op}:
			default:
			}

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				// Events were lost; treat as a possible change.
				select {
				case s.events <- Notification{Path: s.path, Op: OpWrite}:
				default:
				}
			}
			select {
			case s.errors <- err:
			default:
			}
		}
	}
}

// convertOp converts fsnotify.Op to watcher.Op.
func convertOp(fsOp fsnotify.Op) Op {
	var op Op
	if fsOp.Has(fsnotify.Create) {
		op |= OpCreate
	}
	if fsOp.Has(fsnotify.Write) {
		op |= OpWrite
	}
	if fsOp.Has(fsnotify.Remove) {
		op |= OpRemove
	}
	if fsOp.Has(fsnotify.Rename) {
		op |= OpRename
	}
	if fsOp.Has(fsnotify.Chmod) {
		op |= OpChmod
	}
	return op
}
