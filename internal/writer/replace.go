package writer

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"

	"github.com/dshills/hostkeep/internal/vfs"
)

// Replacer performs the final replacement of a file's content. It must
// never leave a partially written file behind.
type Replacer interface {
	Replace(ctx context.Context, path string, content []byte) error
}

// PrivilegedExecutor performs writes that need elevated rights. The
// mechanism (sudo, a helper daemon, an OS prompt) belongs to the
// implementation.
type PrivilegedExecutor interface {
	Write(ctx context.Context, path string, content []byte) error
}

// defaultFileMode is used when the target does not exist yet.
const defaultFileMode fs.FileMode = 0644

// AtomicReplacer writes to a temporary file in the target's directory and
// renames it over the target. The temporary file carries the target's
// mode before the rename, so the live path never has any other mode.
type AtomicReplacer struct{}

// Replace implements Replacer.
func (AtomicReplacer) Replace(_ context.Context, path string, content []byte) (err error) {
	mode := defaultFileMode
	if info, statErr := os.Stat(path); statErr == nil {
		mode = info.Mode().Perm()
	}

	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	f, err := os.CreateTemp(dir, "."+base+".tmp*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()

	if _, err = f.Write(content); err != nil {
		_ = f.Close()
		return err
	}
	if err = f.Chmod(mode); err != nil {
		_ = f.Close()
		return err
	}
	if err = f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return atomic.ReplaceFile(tmp, path)
}

// ElevatedReplacer hands the content to a PrivilegedExecutor.
type ElevatedReplacer struct {
	Executor PrivilegedExecutor
}

// Replace implements Replacer.
func (r ElevatedReplacer) Replace(ctx context.Context, path string, content []byte) error {
	if r.Executor == nil {
		return ErrNoExecutor
	}
	return r.Executor.Write(ctx, path, content)
}

// FSReplacer writes through a vfs.FS in a single WriteFile call. It is as
// atomic as the FS's WriteFile; MemFS swaps content under its lock.
type FSReplacer struct {
	FS vfs.FS
}

// Replace implements Replacer.
func (r FSReplacer) Replace(_ context.Context, path string, content []byte) error {
	mode := defaultFileMode
	if info, err := r.FS.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	return r.FS.WriteFile(path, content, mode)
}

var (
	_ Replacer = AtomicReplacer{}
	_ Replacer = ElevatedReplacer{}
	_ Replacer = FSReplacer{}
)
