package watcher

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dshills/hostkeep/internal/vfs"
)

const (
	watchedPath = "/etc/hosts"
	testDelay   = 20 * time.Millisecond
	settle      = 5 * testDelay
)

// mockSubscription is a Subscription driven by the test.
type mockSubscription struct {
	events chan Notification
	errors chan error

	once   sync.Once
	closed atomic.Bool
}

func newMockSubscription() *mockSubscription {
	return &mockSubscription{
		events: make(chan Notification, 16),
		errors: make(chan error, 16),
	}
}

func (s *mockSubscription) Events() <-chan Notification { return s.events }
func (s *mockSubscription) Errors() <-chan error        { return s.errors }

func (s *mockSubscription) Close() error {
	s.closed.Store(true)
	s.drop()
	return nil
}

// drop ends the subscription without going through Close.
func (s *mockSubscription) drop() {
	s.once.Do(func() {
		close(s.events)
		close(s.errors)
	})
}

func (s *mockSubscription) notify() {
	s.events <- Notification{Path: watchedPath, Op: OpWrite}
}

// mockSource hands out mock subscriptions.
type mockSource struct {
	mu   sync.Mutex
	subs []*mockSubscription
	err  error
}

func (m *mockSource) Subscribe(string) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	sub := newMockSubscription()
	m.subs = append(m.subs, sub)
	return sub, nil
}

func (m *mockSource) last() *mockSubscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subs[len(m.subs)-1]
}

// recorder collects watcher callbacks.
type recorder struct {
	changes atomic.Int32
	mu      sync.Mutex
	errs    []error
}

func (r *recorder) errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func setup(t *testing.T) (*Watcher, *vfs.MemFS, *mockSource, *recorder) {
	t.Helper()

	fsys := vfs.NewMemFS()
	fsys.MkdirAll("/etc")
	if err := fsys.WriteFile(watchedPath, []byte("127.0.0.1\tlocalhost\n"), 0644); err != nil {
		t.Fatal(err)
	}

	src := &mockSource{}
	w := New(watchedPath, WithFS(fsys), WithSource(src), WithDelay(testDelay))
	t.Cleanup(w.Close)

	rec := &recorder{}
	w.OnChange(func(string) { rec.changes.Add(1) })
	w.OnError(func(err error) {
		rec.mu.Lock()
		rec.errs = append(rec.errs, err)
		rec.mu.Unlock()
	})
	return w, fsys, src, rec
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestWatcher_StartStop(t *testing.T) {
	w, _, src, _ := setup(t)

	if w.State() != StateIdle {
		t.Fatalf("initial state = %v, want idle", w.State())
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if len(src.subs) != 1 {
		t.Errorf("subscriptions = %d, want 1", len(src.subs))
	}
	if w.State() != StateWatching {
		t.Errorf("state = %v, want watching", w.State())
	}

	w.Stop()
	w.Stop()
	if w.State() != StateIdle {
		t.Errorf("state after Stop = %v, want idle", w.State())
	}
	if !src.last().closed.Load() {
		t.Error("subscription not closed by Stop")
	}
}

func TestWatcher_UnchangedModTimeIsIgnored(t *testing.T) {
	w, _, src, rec := setup(t)
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}

	sub := src.last()
	sub.notify()
	sub.notify()
	time.Sleep(settle)

	if n := rec.changes.Load(); n != 0 {
		t.Errorf("changes = %d, want 0", n)
	}
}

func TestWatcher_BurstProducesOneChange(t *testing.T) {
	w, fsys, src, rec := setup(t)
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}

	sub := src.last()
	for i := 0; i < 5; i++ {
		if err := fsys.WriteFile(watchedPath, []byte("edit"), 0644); err != nil {
			t.Fatal(err)
		}
		sub.notify()
	}

	waitFor(t, func() bool { return rec.changes.Load() > 0 })
	time.Sleep(settle)
	if n := rec.changes.Load(); n != 1 {
		t.Errorf("changes = %d, want 1", n)
	}

	// A notification without a new mtime does not repeat the change.
	sub.notify()
	time.Sleep(settle)
	if n := rec.changes.Load(); n != 1 {
		t.Errorf("changes after touch = %d, want 1", n)
	}
}

func TestWatcher_Rebaseline(t *testing.T) {
	w, fsys, src, rec := setup(t)
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}

	if err := fsys.WriteFile(watchedPath, []byte("self write"), 0644); err != nil {
		t.Fatal(err)
	}
	w.Rebaseline()
	src.last().notify()
	time.Sleep(settle)

	if n := rec.changes.Load(); n != 0 {
		t.Errorf("changes = %d, want 0", n)
	}
}

func TestWatcher_NoCallbacksAfterStop(t *testing.T) {
	w, fsys, src, rec := setup(t)
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}

	if err := fsys.WriteFile(watchedPath, []byte("edit"), 0644); err != nil {
		t.Fatal(err)
	}
	src.last().notify()
	w.Stop()

	before := rec.changes.Load()
	time.Sleep(settle)
	if after := rec.changes.Load(); after != before {
		t.Errorf("changes went from %d to %d after Stop", before, after)
	}
}

func TestWatcher_WatchErrorKeepsWatching(t *testing.T) {
	w, _, src, rec := setup(t)
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("inotify queue overflow")
	src.last().errors <- boom

	waitFor(t, func() bool { return len(rec.errors()) == 1 })
	if err := rec.errors()[0]; !errors.Is(err, boom) {
		t.Errorf("error = %v, want %v", err, boom)
	}
	if w.State() != StateWatching {
		t.Errorf("state = %v, want watching", w.State())
	}
}

func TestWatcher_SubscriptionLost(t *testing.T) {
	w, _, src, rec := setup(t)
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}

	src.last().drop()

	waitFor(t, func() bool { return w.State() == StateIdle })
	waitFor(t, func() bool { return len(rec.errors()) == 1 })
	if err := rec.errors()[0]; !errors.Is(err, ErrSubscriptionFailed) {
		t.Errorf("error = %v, want ErrSubscriptionFailed", err)
	}

	// The watcher can be restarted after losing its subscription.
	if err := w.Start(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if w.State() != StateWatching {
		t.Errorf("state = %v, want watching", w.State())
	}
}

func TestWatcher_StartFailure(t *testing.T) {
	w, _, src, _ := setup(t)
	src.err = errors.New("too many open files")

	err := w.Start()
	if !errors.Is(err, ErrSubscriptionFailed) {
		t.Errorf("Start error = %v, want ErrSubscriptionFailed", err)
	}
	var pe *PathError
	if !errors.As(err, &pe) || pe.Path != watchedPath {
		t.Errorf("Start error = %#v, want *PathError for %s", err, watchedPath)
	}
	if w.State() != StateIdle {
		t.Errorf("state = %v, want idle", w.State())
	}
}

func TestWatcher_StartAfterClose(t *testing.T) {
	w, _, _, _ := setup(t)
	w.Close()

	if err := w.Start(); !errors.Is(err, ErrWatcherClosed) {
		t.Errorf("Start after Close = %v, want ErrWatcherClosed", err)
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "idle"},
		{StateWatching, "watching"},
		{State(7), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
