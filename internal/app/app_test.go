package app

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/dshills/hostkeep/internal/config"
	"github.com/dshills/hostkeep/internal/hosts"
	"github.com/dshills/hostkeep/internal/vfs"
	"github.com/dshills/hostkeep/internal/writer"
)

const (
	hostsPath  = "/etc/hosts"
	configPath = "/home/u/hostkeep.toml"
)

func newFS(t *testing.T, cfg string) *vfs.MemFS {
	t.Helper()
	fsys := vfs.NewMemFS()
	fsys.MkdirAll("/etc")
	fsys.MkdirAll("/home/u")
	if err := fsys.WriteFile(hostsPath, []byte("127.0.0.1\tlocalhost\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if cfg != "" {
		if err := fsys.WriteFile(configPath, []byte(cfg), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return fsys
}

func noEnv(string) (string, bool) { return "", false }

func newApp(t *testing.T, fsys *vfs.MemFS, opts Options) *Application {
	t.Helper()
	opts.FS = fsys
	opts.ConfigPath = configPath
	opts.LookupEnv = noEnv
	opts.LogOutput = &bytes.Buffer{}
	a, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(a.Shutdown)
	return a
}

func TestNew_Overrides(t *testing.T) {
	fsys := newFS(t, "hosts_path = \"/srv/hosts\"\nlog_level = \"error\"\n")
	a := newApp(t, fsys, Options{
		HostsPath: hostsPath,
		LogLevel:  "debug",
		NoBackup:  true,
		DryRun:    true,
	})

	if a.HostsPath() != hostsPath || a.Engine().Path() != hostsPath {
		t.Errorf("hosts path = %q / %q, want %q", a.HostsPath(), a.Engine().Path(), hostsPath)
	}
	if a.Config().LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", a.Config().LogLevel)
	}
	want := writer.Options{CreateBackup: false, DryRun: true}
	if diff := cmp.Diff(want, a.WriteOptions()); diff != "" {
		t.Errorf("WriteOptions mismatch (-want +got):\n%s", diff)
	}
	if !a.DryRun() {
		t.Error("DryRun() = false")
	}
}

func TestNew_ConfigDefaults(t *testing.T) {
	a := newApp(t, newFS(t, ""), Options{HostsPath: hostsPath})
	if !a.WriteOptions().CreateBackup {
		t.Error("backups should be on by default")
	}
	if got := a.Policy().MaxCount; got != config.Default().Backup.MaxCount {
		t.Errorf("Policy().MaxCount = %d", got)
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  string
		opts Options
	}{
		{"bad level", "", Options{LogLevel: "chatty"}},
		{"unknown key", "colour = true\n", Options{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := tt.opts
			opts.FS = newFS(t, tt.cfg)
			opts.ConfigPath = configPath
			opts.LookupEnv = noEnv
			_, err := New(opts)
			if !errors.Is(err, ErrInitialization) {
				t.Fatalf("New() error = %v, want ErrInitialization", err)
			}
			var ie *InitError
			if !errors.As(err, &ie) || ie.Component != "config" {
				t.Errorf("error = %#v, want InitError{config}", err)
			}
		})
	}
}

func TestWrite_PrunesBackups(t *testing.T) {
	fsys := newFS(t, "[backup]\nmax_count = 1\n")
	a := newApp(t, fsys, Options{HostsPath: hostsPath})
	ctx := context.Background()

	for _, name := range []string{"a.local", "b.local", "c.local"} {
		_, err := a.Engine().AddEntry(ctx, hosts.EntryFields{Address: "10.0.0.1", Name: name, Enabled: true})
		if err != nil {
			t.Fatalf("AddEntry(%s): %v", name, err)
		}
	}

	backups, err := a.Backups().List(hostsPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(backups) != 1 {
		t.Fatalf("len(backups) = %d, want 1 after retention", len(backups))
	}

	// The newest backup holds the state before the last add.
	data, err := fsys.ReadFile(backups[0].Path)
	if err != nil {
		t.Fatal(err)
	}
	if want := "127.0.0.1\tlocalhost\n10.0.0.1\ta.local\n10.0.0.1\tb.local\n"; string(data) != want {
		t.Errorf("backup content = %q, want %q", data, want)
	}
}

// rootExecutor stands in for sudo: it writes and removes on the MemFS
// behind the unprivileged view the application gets.
type rootExecutor struct {
	fs *vfs.MemFS

	mu      sync.Mutex
	writes  []string
	removes []string
}

func (e *rootExecutor) Write(_ context.Context, path string, content []byte) error {
	e.mu.Lock()
	e.writes = append(e.writes, path)
	e.mu.Unlock()
	return e.fs.WriteFile(path, content, 0644)
}

func (e *rootExecutor) Remove(_ context.Context, path string) error {
	e.mu.Lock()
	e.removes = append(e.removes, path)
	e.mu.Unlock()
	return e.fs.Remove(path)
}

// userView is the file system as a user without write access to /etc
// sees it.
type userView struct {
	*vfs.MemFS
}

func (userView) Remove(string) error { return fs.ErrPermission }

func TestWrite_ElevatedPrunesThroughExecutor(t *testing.T) {
	fsys := newFS(t, "[backup]\nmax_count = 1\n")
	exec := &rootExecutor{fs: fsys}
	a, err := New(Options{
		FS:         userView{fsys},
		ConfigPath: configPath,
		LookupEnv:  noEnv,
		LogOutput:  &bytes.Buffer{},
		HostsPath:  hostsPath,
		Elevate:    true,
		Executor:   exec,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(a.Shutdown)
	ctx := context.Background()

	for _, name := range []string{"a.local", "b.local", "c.local"} {
		_, err := a.Engine().AddEntry(ctx, hosts.EntryFields{Address: "10.0.0.1", Name: name, Enabled: true})
		if err != nil {
			t.Fatalf("AddEntry(%s): %v", name, err)
		}
	}

	backups, err := a.Backups().List(hostsPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(backups) != 1 {
		t.Fatalf("len(backups) = %d, want 1 after retention", len(backups))
	}

	exec.mu.Lock()
	defer exec.mu.Unlock()
	if len(exec.removes) != 2 {
		t.Errorf("executor removed %v, want 2 backups", exec.removes)
	}
	// Three backups and three replacements.
	if len(exec.writes) != 6 {
		t.Errorf("executor wrote %d files, want 6", len(exec.writes))
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	a := newApp(t, newFS(t, ""), Options{HostsPath: hostsPath})
	a.Shutdown()
	a.Shutdown()
	if _, err := a.Engine().Load(context.Background()); err == nil {
		t.Error("Load after Shutdown succeeded")
	}
}
