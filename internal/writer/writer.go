// Package writer persists hosts documents to disk.
//
// A write serializes the document, optionally copies the current file to a
// timestamped backup, and replaces the target atomically. Writes to the
// same path are serialized. Write never returns an error directly: the
// outcome is a Result, which is also delivered to OnResult observers.
package writer

import (
	"context"
	"errors"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/hostkeep/internal/hosts"
	"github.com/dshills/hostkeep/internal/logging"
	"github.com/dshills/hostkeep/internal/notify"
	"github.com/dshills/hostkeep/internal/vfs"
)

// BackupInfix separates the target path from the backup timestamp.
const BackupInfix = ".backup."

// Options controls a single write.
type Options struct {
	// CreateBackup copies the current file to <path>.backup.<millis> first.
	CreateBackup bool

	// UseElevatedPath routes the backup and the replacement through the
	// configured PrivilegedExecutor.
	UseElevatedPath bool

	// DryRun serializes the document and reports the content without
	// touching the file system.
	DryRun bool
}

// Result describes the outcome of a write.
type Result struct {
	ID         uuid.UUID
	Success    bool
	Err        error
	Path       string
	BackupPath string // Empty when no backup was made
	Duration   time.Duration
	Content    string // Serialized document
}

// Writer writes hosts documents.
type Writer struct {
	fs       vfs.FS
	replacer Replacer
	executor PrivilegedExecutor
	logger   *logging.Logger
	now      func() time.Time

	locks   pathLocks
	results *notify.Notifier[Result]
}

// Option configures a Writer.
type Option func(*Writer)

// WithFS sets the file system used for reads and backups.
func WithFS(fsys vfs.FS) Option {
	return func(w *Writer) {
		w.fs = fsys
	}
}

// WithReplacer sets the unprivileged replacement strategy.
func WithReplacer(r Replacer) Option {
	return func(w *Writer) {
		w.replacer = r
	}
}

// WithExecutor sets the executor used for elevated writes.
func WithExecutor(e PrivilegedExecutor) Option {
	return func(w *Writer) {
		w.executor = e
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(w *Writer) {
		w.logger = l
	}
}

// WithClock sets the clock used for backup names.
func WithClock(now func() time.Time) Option {
	return func(w *Writer) {
		w.now = now
	}
}

// New creates a Writer. It defaults to the OS file system and an
// AtomicReplacer.
func New(opts ...Option) *Writer {
	w := &Writer{
		fs:       vfs.NewOSFS(),
		replacer: AtomicReplacer{},
		logger:   logging.Nop(),
		now:      time.Now,
		results:  notify.New[Result](),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.WithComponent("writer")
	return w
}

// OnResult registers an observer for every non-dry-run write outcome.
func (w *Writer) OnResult(fn func(Result)) *notify.Subscription {
	return w.results.Subscribe(fn)
}

// Write persists doc to doc.Path.
func (w *Writer) Write(ctx context.Context, doc *hosts.Document, opts Options) Result {
	start := time.Now()
	res := Result{
		ID:      uuid.New(),
		Path:    doc.Path,
		Content: hosts.Serialize(doc),
	}

	if opts.DryRun {
		res.Success = true
		res.Duration = time.Since(start)
		w.logger.Debug("dry run for %s (%d bytes)", res.Path, len(res.Content))
		return res
	}

	unlock := w.locks.lock(doc.Path)
	res.BackupPath, res.Err = w.write(ctx, doc.Path, []byte(res.Content), opts)
	unlock()

	res.Success = res.Err == nil
	res.Duration = time.Since(start)
	if res.Success {
		w.logger.Info("wrote %s in %s", res.Path, res.Duration)
	} else {
		w.logger.Error("write %s: %v", res.Path, res.Err)
	}

	w.results.Publish(res)
	return res
}

// write runs the backup and replace stages. Caller holds the path lock.
func (w *Writer) write(ctx context.Context, path string, content []byte, opts Options) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", writeError(path, err)
	}

	if opts.UseElevatedPath && w.executor == nil {
		return "", writeError(path, ErrNoExecutor)
	}

	var backupPath string
	if opts.CreateBackup {
		var err error
		backupPath, err = w.backup(ctx, path, opts.UseElevatedPath)
		if err != nil {
			return "", backupError(path, err)
		}
	}

	replacer := w.replacer
	if opts.UseElevatedPath {
		replacer = ElevatedReplacer{Executor: w.executor}
	}
	if err := replacer.Replace(ctx, path, content); err != nil {
		return backupPath, writeError(path, err)
	}
	return backupPath, nil
}

// backup copies the current target. A missing target needs no backup.
func (w *Writer) backup(ctx context.Context, path string, elevated bool) (string, error) {
	data, err := w.fs.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	mode := defaultFileMode
	if info, err := w.fs.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	name := w.backupName(path)
	if elevated {
		err = w.executor.Write(ctx, name, data)
	} else {
		err = w.fs.WriteFile(name, data, mode)
	}
	if err != nil {
		return "", err
	}
	w.logger.Debug("backed up %s to %s", path, name)
	return name, nil
}

// backupName returns a backup path that does not exist yet, moving the
// timestamp forward a millisecond at a time on collision.
func (w *Writer) backupName(path string) string {
	t := w.now()
	name := BackupPath(path, t)
	for vfs.Exists(w.fs, name) {
		t = t.Add(time.Millisecond)
		name = BackupPath(path, t)
	}
	return name
}

// BackupPath returns the backup file name for path taken at t.
func BackupPath(path string, t time.Time) string {
	return path + BackupInfix + strconv.FormatInt(t.UnixMilli(), 10)
}

// ParseBackupPath reports whether name is a backup of path and, if so,
// when it was taken.
func ParseBackupPath(path, name string) (time.Time, bool) {
	stamp, ok := strings.CutPrefix(name, path+BackupInfix)
	if !ok || stamp == "" {
		return time.Time{}, false
	}
	millis, err := strconv.ParseInt(stamp, 10, 64)
	if err != nil || millis < 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(millis), true
}
