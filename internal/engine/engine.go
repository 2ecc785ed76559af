// Package engine owns the in-memory hosts document and coordinates the
// parser, mutators, writer and watcher around it.
//
// Mutations run against a copy of the current document. A mutation that
// fails validation or targets a missing line returns before anything is
// written. After a successful write the file is reparsed and becomes the
// current document. External edits reported by the watcher trigger a full
// reparse; at most one reparse runs at a time and at most one more is
// queued behind it.
//
// Subscribers receive events FIFO on a single delivery goroutine.
package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/dshills/hostkeep/internal/hosts"
	"github.com/dshills/hostkeep/internal/logging"
	"github.com/dshills/hostkeep/internal/notify"
	"github.com/dshills/hostkeep/internal/vfs"
	"github.com/dshills/hostkeep/internal/watcher"
	"github.com/dshills/hostkeep/internal/writer"
)

// Errors returned by engine operations.
var (
	// ErrClosed indicates the engine has been closed.
	ErrClosed = errors.New("engine is closed")
)

// Engine manages one hosts file.
type Engine struct {
	cfg         Config
	fs          vfs.FS
	writer      *writer.Writer
	source      watcher.Source
	watcher     *watcher.Watcher
	logger      *logging.Logger
	eventBuffer int
	events      *notify.Notifier[Event]

	// Guards doc.
	mu  sync.RWMutex
	doc *hosts.Document

	// Serializes loads, mutations and reloads.
	opMu   sync.Mutex
	closed bool

	reload    chan struct{}
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New creates an Engine for cfg.Path. Call Load or any mutation to read
// the file, and StartWatching to follow external edits.
func New(cfg Config, opts ...Option) *Engine {
	e := &Engine{
		cfg:         cfg,
		fs:          vfs.NewOSFS(),
		logger:      logging.Nop(),
		eventBuffer: DefaultEventBuffer,
		reload:      make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.WithComponent("engine").WithField("path", cfg.Path)

	if e.writer == nil {
		e.writer = writer.New(writer.WithFS(e.fs), writer.WithLogger(e.logger))
	}

	watchOpts := []watcher.Option{
		watcher.WithFS(e.fs),
		watcher.WithDelay(cfg.Debounce),
		watcher.WithLogger(e.logger),
	}
	if e.source != nil {
		watchOpts = append(watchOpts, watcher.WithSource(e.source))
	}
	e.watcher = watcher.New(cfg.Path, watchOpts...)
	e.watcher.OnChange(func(string) { e.requestReload() })
	e.watcher.OnError(func(err error) { e.publish(watchErrorEvent(err)) })

	e.events = notify.New[Event](notify.WithAsync(e.eventBuffer))

	e.wg.Add(1)
	go e.reloadLoop()

	return e
}

// Subscribe registers fn for every event. Delivery is FIFO and never
// concurrent.
func (e *Engine) Subscribe(fn func(Event)) *notify.Subscription {
	return e.events.Subscribe(fn)
}

// Path returns the managed file path.
func (e *Engine) Path() string {
	return e.cfg.Path
}

// Document returns a copy of the current document, or nil before the
// first load.
func (e *Engine) Document() *hosts.Document {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.doc == nil {
		return nil
	}
	return e.doc.Clone()
}

// Load parses the file, makes it the current document and returns a copy.
func (e *Engine) Load(ctx context.Context) (*hosts.Document, error) {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	if e.closed {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := e.parse()
	if err != nil {
		return nil, err
	}
	e.replace(doc)
	return doc.Clone(), nil
}

// AddEntry appends a new entry.
func (e *Engine) AddEntry(ctx context.Context, f hosts.EntryFields) (writer.Result, error) {
	return e.mutate(ctx, "add", func(doc *hosts.Document) (*hosts.Document, error) {
		return hosts.AddEntry(doc, f)
	})
}

// UpdateEntry replaces the entry with the same line number.
func (e *Engine) UpdateEntry(ctx context.Context, entry hosts.Entry) (writer.Result, error) {
	return e.mutate(ctx, "update", func(doc *hosts.Document) (*hosts.Document, error) {
		return hosts.UpdateEntry(doc, entry)
	})
}

// RemoveEntry removes line n. A missing line is not an error.
func (e *Engine) RemoveEntry(ctx context.Context, n int) (writer.Result, error) {
	return e.mutate(ctx, "remove", func(doc *hosts.Document) (*hosts.Document, error) {
		return hosts.RemoveEntry(doc, n), nil
	})
}

// ToggleEntry flips the enabled flag of entry n.
func (e *Engine) ToggleEntry(ctx context.Context, n int) (writer.Result, error) {
	return e.mutate(ctx, "toggle", func(doc *hosts.Document) (*hosts.Document, error) {
		return hosts.ToggleEntry(doc, n)
	})
}

// SetEnabled sets the enabled flag of entry n.
func (e *Engine) SetEnabled(ctx context.Context, n int, enabled bool) (writer.Result, error) {
	return e.mutate(ctx, "set-enabled", func(doc *hosts.Document) (*hosts.Document, error) {
		return hosts.SetEnabled(doc, n, enabled)
	})
}

// StartWatching starts following external edits. It reports whether the
// watcher is running; a failure is also published as a watch error.
func (e *Engine) StartWatching() bool {
	if err := e.watcher.Start(); err != nil {
		e.logger.Error("start watching: %v", err)
		e.publish(watchErrorEvent(err))
		return false
	}
	return true
}

// StopWatching stops following external edits. It reports whether the
// watcher was running.
func (e *Engine) StopWatching() bool {
	was := e.watcher.State() == watcher.StateWatching
	e.watcher.Stop()
	return was
}

// Watching reports whether external edits are being followed.
func (e *Engine) Watching() bool {
	return e.watcher.State() == watcher.StateWatching
}

// Close stops watching, waits for a running reload and delivers queued
// events. The engine cannot be used afterwards.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.watcher.Close()

		e.opMu.Lock()
		e.closed = true
		e.opMu.Unlock()

		close(e.done)
		e.wg.Wait()
		e.events.Close()
	})
}

// mutate applies fn to a copy of the current document and writes the
// result. Caller-side errors from fn return before any write.
func (e *Engine) mutate(ctx context.Context, op string, fn func(*hosts.Document) (*hosts.Document, error)) (writer.Result, error) {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	if e.closed {
		return writer.Result{}, ErrClosed
	}

	cur := e.Document()
	if cur == nil {
		doc, err := e.parse()
		if err != nil {
			return writer.Result{}, err
		}
		e.replace(doc)
		cur = doc.Clone()
	}

	next, err := fn(cur)
	if err != nil {
		e.logger.Debug("%s rejected: %v", op, err)
		return writer.Result{}, err
	}

	res := e.writer.Write(ctx, next, e.cfg.Write)
	if e.cfg.Write.DryRun {
		return res, res.Err
	}
	e.publish(writeEvent(res))
	if !res.Success {
		return res, res.Err
	}

	doc, err := e.parse()
	if err != nil {
		// The write succeeded; keep what was written.
		e.logger.Warn("reparse after %s: %v", op, err)
		doc = next
	}
	e.replace(doc)
	e.watcher.Rebaseline()
	return res, nil
}

// requestReload queues a reparse unless one is already queued.
func (e *Engine) requestReload() {
	select {
	case e.reload <- struct{}{}:
	default:
	}
}

func (e *Engine) reloadLoop() {
	defer e.wg.Done()

	for {
		select {
		case <-e.done:
			return
		case <-e.reload:
			e.reloadNow()
		}
	}
}

func (e *Engine) reloadNow() {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	if e.closed {
		return
	}
	doc, err := e.parse()
	if err != nil {
		e.logger.Error("reload: %v", err)
		e.publish(watchErrorEvent(err))
		return
	}
	e.replace(doc)
}

// parse reads the file from disk. Caller holds opMu.
func (e *Engine) parse() (*hosts.Document, error) {
	doc, err := hosts.ParseFile(e.fs, e.cfg.Path)
	if err != nil {
		return nil, err
	}
	if e.logger.Enabled(logging.LevelDebug) {
		stats := doc.Stats()
		e.logger.Debug("parsed %d entries, %d comments", stats.Entries, stats.Comments)
	}
	return doc, nil
}

// replace installs doc as current and announces it. Caller holds opMu.
func (e *Engine) replace(doc *hosts.Document) {
	e.mu.Lock()
	e.doc = doc
	e.mu.Unlock()

	e.publish(changedEvent(doc.Clone()))
}

func (e *Engine) publish(ev Event) {
	e.events.Publish(ev)
}
