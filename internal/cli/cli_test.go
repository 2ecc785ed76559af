package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/dshills/hostkeep/internal/app"
	"github.com/dshills/hostkeep/internal/vfs"
	"github.com/dshills/hostkeep/internal/watcher"
)

const (
	hostsPath = "/etc/hosts"
	initial   = "127.0.0.1\tlocalhost\n# dev\n10.0.0.1\tapp.local\n"
)

type harness struct {
	t      *testing.T
	fs     *vfs.MemFS
	source watcher.Source
	out    bytes.Buffer
	err    bytes.Buffer
}

func newHarness(t *testing.T, content string) *harness {
	t.Helper()
	fsys := vfs.NewMemFS()
	fsys.MkdirAll("/etc")
	if err := fsys.WriteFile(hostsPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return &harness{t: t, fs: fsys}
}

func noEnv(string) (string, bool) { return "", false }

func (h *harness) runContext(ctx context.Context, args ...string) int {
	h.out.Reset()
	h.err.Reset()
	r := &Runner{
		Out:     &h.out,
		Err:     &h.err,
		Version: "1.2.3",
		Base: app.Options{
			FS:        h.fs,
			LookupEnv: noEnv,
			Source:    h.source,
		},
	}
	global := []string{"--hosts=" + hostsPath, "--config=/none/config.toml", "--log-level=error"}
	return r.Execute(ctx, append(global, args...))
}

func (h *harness) run(args ...string) int {
	return h.runContext(context.Background(), args...)
}

func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	if code := h.run(args...); code != 0 {
		h.t.Fatalf("%v exit %d: %s", args, code, h.err.String())
	}
	return h.out.String()
}

func (h *harness) disk() string {
	h.t.Helper()
	data, err := h.fs.ReadFile(hostsPath)
	if err != nil {
		h.t.Fatal(err)
	}
	return string(data)
}

func TestList_Text(t *testing.T) {
	h := newHarness(t, initial)

	out := h.mustRun("list")
	for _, want := range []string{"LINE", "localhost", "app.local", "2 entries (2 enabled, 0 disabled)"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "# dev") {
		t.Errorf("comment listed without --all:\n%s", out)
	}

	if out := h.mustRun("list", "--all"); !strings.Contains(out, "# dev") {
		t.Errorf("--all output missing comment:\n%s", out)
	}
}

func TestList_JSON(t *testing.T) {
	h := newHarness(t, "127.0.0.1\tlocalhost\n# 10.0.0.2 off.local www.off # old\n")

	var got []lineView
	if err := json.Unmarshal([]byte(h.mustRun("list", "-o", "json")), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}

	on, off := true, false
	want := []lineView{
		{Line: 0, Type: "entry", Address: "127.0.0.1", Name: "localhost", Enabled: &on},
		{Line: 1, Type: "entry", Address: "10.0.0.2", Name: "off.local", Aliases: []string{"www.off"}, Enabled: &off, Comment: "# old"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("list mismatch (-want +got):\n%s", diff)
	}
}

func TestList_YAML(t *testing.T) {
	h := newHarness(t, initial)
	out := h.mustRun("list", "-o", "yaml", "--all")
	for _, want := range []string{"name: localhost", "type: comment", "# dev"} {
		if !strings.Contains(out, want) {
			t.Errorf("yaml missing %q:\n%s", want, out)
		}
	}
}

func TestList_UnknownFormat(t *testing.T) {
	h := newHarness(t, initial)
	if code := h.run("list", "-o", "xml"); code != 1 {
		t.Errorf("exit = %d, want 1", code)
	}
	if !strings.Contains(h.err.String(), "unknown output format") {
		t.Errorf("stderr = %q", h.err.String())
	}
}

func TestAdd(t *testing.T) {
	h := newHarness(t, initial)

	out := h.mustRun("add", "10.0.0.5", "db.local", "db", "--comment", "database")
	if !strings.Contains(out, "updated "+hostsPath) || !strings.Contains(out, "backup: ") {
		t.Errorf("output = %q", out)
	}
	if want := initial + "10.0.0.5\tdb.local db # database\n"; h.disk() != want {
		t.Errorf("disk = %q, want %q", h.disk(), want)
	}
}

func TestAdd_Invalid(t *testing.T) {
	h := newHarness(t, initial)
	if code := h.run("add", "not-an-ip", "x"); code != 1 {
		t.Errorf("exit = %d, want 1", code)
	}
	if h.disk() != initial {
		t.Error("invalid add changed the file")
	}
}

func TestDryRunShowsDiff(t *testing.T) {
	h := newHarness(t, initial)

	out := h.mustRun("--dry-run", "add", "10.0.0.5", "db.local", "--disabled")
	if !strings.Contains(out, "+# 10.0.0.5\tdb.local") {
		t.Errorf("diff missing added line:\n%s", out)
	}
	if !strings.Contains(out, " 127.0.0.1\tlocalhost") {
		t.Errorf("diff missing context:\n%s", out)
	}
	if h.disk() != initial {
		t.Errorf("dry run wrote the file: %q", h.disk())
	}
	files, _ := h.fs.ReadDir("/etc")
	if len(files) != 1 {
		t.Errorf("dry run left %d files in /etc, want 1", len(files))
	}
}

func TestEnableDisableToggle(t *testing.T) {
	h := newHarness(t, initial)

	h.mustRun("disable", "app.local")
	if !strings.Contains(h.disk(), "# 10.0.0.1\tapp.local") {
		t.Fatalf("disable: disk = %q", h.disk())
	}
	h.mustRun("enable", "2")
	if h.disk() != initial {
		t.Fatalf("enable: disk = %q", h.disk())
	}
	h.mustRun("toggle", "localhost")
	if !strings.HasPrefix(h.disk(), "# 127.0.0.1\tlocalhost\n") {
		t.Fatalf("toggle: disk = %q", h.disk())
	}
}

func TestSelectorErrors(t *testing.T) {
	h := newHarness(t, "10.0.0.1\tapp.local\n10.0.0.2\tapp.local\n# note\n")

	tests := []struct {
		args []string
		want string
	}{
		{[]string{"toggle", "app.local"}, "lines 0, 1"},
		{[]string{"toggle", "missing.local"}, "no entry named"},
		{[]string{"toggle", "2"}, "no entry on line 2"},
		{[]string{"update", "0"}, "nothing to update"},
	}
	for _, tt := range tests {
		if code := h.run(tt.args...); code != 1 {
			t.Errorf("%v exit = %d, want 1", tt.args, code)
		}
		if !strings.Contains(h.err.String(), tt.want) {
			t.Errorf("%v stderr = %q, want %q", tt.args, h.err.String(), tt.want)
		}
	}
}

func TestUpdate(t *testing.T) {
	h := newHarness(t, initial)

	h.mustRun("update", "app.local", "--address", "10.0.0.9", "--aliases", "app,www.app")
	want := "127.0.0.1\tlocalhost\n# dev\n10.0.0.9\tapp.local app www.app\n"
	if h.disk() != want {
		t.Errorf("disk = %q, want %q", h.disk(), want)
	}

	h.mustRun("update", "2", "--aliases", "")
	if want := "127.0.0.1\tlocalhost\n# dev\n10.0.0.9\tapp.local\n"; h.disk() != want {
		t.Errorf("clearing aliases: disk = %q, want %q", h.disk(), want)
	}
}

func TestRemove(t *testing.T) {
	h := newHarness(t, initial)

	h.mustRun("remove", "localhost")
	if want := "# dev\n10.0.0.1\tapp.local\n"; h.disk() != want {
		t.Errorf("disk = %q, want %q", h.disk(), want)
	}

	// Line numbers are those of the file as it is now.
	h.mustRun("rm", "1")
	if want := "# dev\n"; h.disk() != want {
		t.Errorf("disk = %q, want %q", h.disk(), want)
	}
}

func TestRemove_RejectsNonEntryLines(t *testing.T) {
	h := newHarness(t, initial)

	for _, sel := range []string{"1", "7"} {
		if code := h.run("remove", sel); code != 1 {
			t.Errorf("remove %s exit = %d, want 1", sel, code)
		}
		if !strings.Contains(h.err.String(), "no entry on line "+sel) {
			t.Errorf("remove %s stderr = %q", sel, h.err.String())
		}
		if h.disk() != initial {
			t.Errorf("remove %s changed the file: %q", sel, h.disk())
		}
	}
	files, _ := h.fs.ReadDir("/etc")
	if len(files) != 1 {
		t.Errorf("rejected removes left %d files in /etc, want 1", len(files))
	}
}

func TestBackupCommands(t *testing.T) {
	h := newHarness(t, initial)
	h.mustRun("add", "10.0.0.5", "a.local")
	h.mustRun("add", "10.0.0.6", "b.local")

	out := h.mustRun("backup", "list")
	if strings.Count(out, "hosts.backup.") != 2 {
		t.Fatalf("backup list:\n%s", out)
	}

	out = h.mustRun("backup", "prune", "--max-count", "1")
	if !strings.Contains(out, "1 backups removed") {
		t.Errorf("prune output = %q", out)
	}

	files, _ := h.fs.ReadDir("/etc")
	var name string
	for _, f := range files {
		if strings.Contains(f.Name(), ".backup.") {
			name = f.Name()
		}
	}
	if name == "" {
		t.Fatal("no backup left after prune")
	}

	// The newest backup holds the file before the second add.
	h.mustRun("--no-backup", "backup", "restore", name)
	if want := initial + "10.0.0.5\ta.local\n"; h.disk() != want {
		t.Errorf("restored disk = %q, want %q", h.disk(), want)
	}

	if code := h.run("backup", "restore", "hosts.orig"); code != 1 {
		t.Errorf("restore of a foreign file exit = %d, want 1", code)
	}
}

func TestWatch(t *testing.T) {
	h := newHarness(t, initial)
	h.source = stubSource{}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if code := h.runContext(ctx, "watch"); code != 0 {
		t.Fatalf("exit %d: %s", code, h.err.String())
	}
	if !strings.Contains(h.out.String(), "changed 2 entries (2 enabled, 0 disabled)") {
		t.Errorf("watch output = %q", h.out.String())
	}
}

func TestVersionAndConfig(t *testing.T) {
	h := newHarness(t, initial)

	if out := h.mustRun("version"); !strings.HasPrefix(out, "hostkeep 1.2.3\n") {
		t.Errorf("version = %q", out)
	}

	out := h.mustRun("--no-backup", "config", "show")
	for _, want := range []string{"hosts_path", "/etc/hosts", "backup = false", "max_count = 10"} {
		if !strings.Contains(out, want) {
			t.Errorf("config show missing %q:\n%s", want, out)
		}
	}
}

type stubSource struct{}

func (stubSource) Subscribe(string) (watcher.Subscription, error) {
	return &stubSubscription{
		events: make(chan watcher.Notification),
		errors: make(chan error),
	}, nil
}

type stubSubscription struct {
	events chan watcher.Notification
	errors chan error
	once   sync.Once
}

func (s *stubSubscription) Events() <-chan watcher.Notification { return s.events }
func (s *stubSubscription) Errors() <-chan error                { return s.errors }

func (s *stubSubscription) Close() error {
	s.once.Do(func() {
		close(s.events)
		close(s.errors)
	})
	return nil
}
