// Package backup manages the timestamped copies the writer leaves next to
// a hosts file.
package backup

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/dshills/hostkeep/internal/hosts"
	"github.com/dshills/hostkeep/internal/logging"
	"github.com/dshills/hostkeep/internal/vfs"
	"github.com/dshills/hostkeep/internal/writer"
)

// ErrUnknownBackup is returned when a backup name does not belong to the
// managed file.
var ErrUnknownBackup = errors.New("unknown backup")

// Backup describes one backup file.
type Backup struct {
	Path    string
	Name    string
	Taken   time.Time
	Size    int64
	ModTime time.Time
}

// Policy bounds retention. A zero field disables that limit.
type Policy struct {
	MaxCount int
	MaxAge   time.Duration
}

// Remover deletes files the Manager's FS may not be allowed to delete,
// such as backups written with raised privileges.
type Remover interface {
	Remove(ctx context.Context, path string) error
}

// Manager lists, prunes and restores backups.
type Manager struct {
	fs      vfs.FS
	writer  *writer.Writer
	remover Remover
	logger  *logging.Logger
	now     func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithRemover routes pruning through r instead of the FS.
func WithRemover(r Remover) Option {
	return func(m *Manager) {
		m.remover = r
	}
}

// WithClock sets the clock used for age-based pruning.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a Manager. Restores go through w.
func NewManager(fsys vfs.FS, w *writer.Writer, opts ...Option) *Manager {
	m := &Manager{
		fs:     fsys,
		writer: w,
		logger: logging.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.WithComponent("backup")
	return m
}

// List returns the backups of path, newest first.
func (m *Manager) List(path string) ([]Backup, error) {
	files, err := m.fs.ReadDir(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}

	var backups []Backup
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		full := filepath.Join(filepath.Dir(path), f.Name())
		taken, ok := writer.ParseBackupPath(path, full)
		if !ok {
			continue
		}
		backups = append(backups, Backup{
			Path:    full,
			Name:    f.Name(),
			Taken:   taken,
			Size:    f.Size(),
			ModTime: f.ModTime(),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Taken.After(backups[j].Taken)
	})
	return backups, nil
}

// Prune deletes backups beyond the policy and returns what it removed.
// Removal stops at the first failure.
func (m *Manager) Prune(ctx context.Context, path string, p Policy) ([]Backup, error) {
	backups, err := m.List(path)
	if err != nil {
		return nil, err
	}

	now := m.now()
	var removed []Backup
	for i, b := range backups {
		tooMany := p.MaxCount > 0 && i >= p.MaxCount
		tooOld := p.MaxAge > 0 && now.Sub(b.Taken) > p.MaxAge
		if !tooMany && !tooOld {
			continue
		}
		if err := m.remove(ctx, b.Path); err != nil {
			return removed, fmt.Errorf("prune %s: %w", b.Name, err)
		}
		m.logger.Debug("pruned %s", b.Name)
		removed = append(removed, b)
	}

	if len(removed) > 0 {
		m.logger.Info("pruned %d backups of %s", len(removed), path)
	}
	return removed, nil
}

func (m *Manager) remove(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.remover != nil {
		return m.remover.Remove(ctx, path)
	}
	return m.fs.Remove(path)
}

// Restore writes the content of the named backup back to path. The name
// may be a base name or a full path. With opts.CreateBackup the current
// file is itself backed up first.
func (m *Manager) Restore(ctx context.Context, path, name string, opts writer.Options) (writer.Result, error) {
	full := name
	if filepath.Base(name) == name {
		full = filepath.Join(filepath.Dir(path), name)
	}
	if _, ok := writer.ParseBackupPath(path, full); !ok {
		return writer.Result{}, fmt.Errorf("%w: %s", ErrUnknownBackup, name)
	}

	doc, err := hosts.ParseFile(m.fs, full)
	if err != nil {
		return writer.Result{}, err
	}
	doc.Path = path

	res := m.writer.Write(ctx, doc, opts)
	if res.Err != nil {
		return res, res.Err
	}
	if !opts.DryRun {
		m.logger.Info("restored %s from %s", path, filepath.Base(full))
	}
	return res, nil
}
