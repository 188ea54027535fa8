package watch

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// nextEvent advances the mock clock until an event is delivered.
func nextEvent(t *testing.T, mock *clock.Mock, step time.Duration, events <-chan Event) Event {
	t.Helper()

	var got Event

	require.Eventually(t, func() bool {
		select {
		case got = <-events:
			return true
		default:
			mock.Add(step)
			return false
		}
	}, 2*time.Second, 5*time.Millisecond)

	return got
}

// ---------------------------------------------------------------------------
// Op / Event
// ---------------------------------------------------------------------------

func TestOp_String(t *testing.T) {
	assert.Equal(t, "NONE", Op(0).String())
	assert.Equal(t, "MODIFY", Modify.String())
	assert.Equal(t, "CREATE|REMOVE", (Create | Remove).String())
}

func TestEvent_Has(t *testing.T) {
	ev := Event{Path: "a.hs", Op: Modify | Remove}
	assert.True(t, ev.Has(Modify))
	assert.True(t, ev.Has(Remove))
	assert.False(t, ev.Has(Create))
	assert.Equal(t, `MODIFY|REMOVE "a.hs"`, ev.String())
}

func TestTranslateOp(t *testing.T) {
	tests := []struct {
		name string
		op   fsnotify.Op
		want Op
	}{
		{"write", fsnotify.Write, Modify},
		{"create", fsnotify.Create, Create},
		{"remove", fsnotify.Remove, Remove},
		{"rename", fsnotify.Rename, Remove},
		{"chmod only", fsnotify.Chmod, 0},
		{"zero op", 0, 0},
		{"write and chmod", fsnotify.Write | fsnotify.Chmod, Modify},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, translateOp(tt.op))
		})
	}
}

// ---------------------------------------------------------------------------
// Debouncer
// ---------------------------------------------------------------------------

func TestDebouncer_SingleEvent(t *testing.T) {
	mock := clock.NewMock()

	var calls atomic.Int32
	var last atomic.Value

	d := NewDebouncer(50*time.Millisecond, mock, func(path string) {
		calls.Add(1)
		last.Store(path)
	})
	defer d.Stop()

	d.Trigger("a.hs")
	assert.Equal(t, 1, d.pending())

	mock.Add(50 * time.Millisecond)

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "a.hs", last.Load())
	assert.Equal(t, 0, d.pending())
}

func TestDebouncer_BurstCoalesced(t *testing.T) {
	mock := clock.NewMock()

	var calls atomic.Int32

	d := NewDebouncer(50*time.Millisecond, mock, func(string) { calls.Add(1) })
	defer d.Stop()

	for range 5 {
		d.Trigger("a.hs")
		mock.Add(20 * time.Millisecond)
	}

	assert.Equal(t, int32(0), calls.Load())

	mock.Add(50 * time.Millisecond)
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDebouncer_PathsIndependent(t *testing.T) {
	mock := clock.NewMock()

	var mu sync.Mutex
	seen := map[string]int{}

	d := NewDebouncer(50*time.Millisecond, mock, func(path string) {
		mu.Lock()
		seen[path]++
		mu.Unlock()
	})
	defer d.Stop()

	d.Trigger("a.hs")
	d.Trigger("b.hs")
	assert.Equal(t, 2, d.pending())

	mock.Add(50 * time.Millisecond)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return seen["a.hs"] == 1 && seen["b.hs"] == 1
	}, time.Second, 5*time.Millisecond)
}

func TestDebouncer_Stop(t *testing.T) {
	mock := clock.NewMock()

	var calls atomic.Int32

	d := NewDebouncer(50*time.Millisecond, mock, func(string) { calls.Add(1) })

	d.Trigger("a.hs")
	d.Stop()
	d.Trigger("b.hs")

	mock.Add(100 * time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, int32(0), calls.Load())
	assert.Equal(t, 0, d.pending())
}

func TestDebouncer_ZeroIntervalFiresImmediately(t *testing.T) {
	var calls atomic.Int32

	d := NewDebouncer(0, nil, func(string) { calls.Add(1) })
	defer d.Stop()

	d.Trigger("a.hs")
	assert.Equal(t, int32(1), calls.Load())
}

func TestDebouncer_RecoversFromPanic(t *testing.T) {
	d := NewDebouncer(0, nil, func(string) { panic("boom") })
	defer d.Stop()

	assert.NotPanics(t, func() { d.Trigger("a.hs") })
}

// ---------------------------------------------------------------------------
// New
// ---------------------------------------------------------------------------

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	assert.Equal(t, BackendPoll, opts.Backend)
	assert.Equal(t, 50*time.Millisecond, opts.Interval)
	assert.NotNil(t, opts.Clock)
	assert.NotNil(t, opts.Logger)
}

func TestNew_Backends(t *testing.T) {
	for _, backend := range []string{"", BackendPoll, BackendFSNotify} {
		t.Run("backend="+backend, func(t *testing.T) {
			n, err := New(Options{Backend: backend, Logger: discardLogger()})
			require.NoError(t, err)
			require.NoError(t, n.Close())
		})
	}
}

func TestNew_UnknownBackend(t *testing.T) {
	_, err := New(Options{Backend: "inotify"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown notifier backend")
}

// ---------------------------------------------------------------------------
// Poller
// ---------------------------------------------------------------------------

func newTestPoller(t *testing.T) (*Poller, *clock.Mock) {
	t.Helper()

	mock := clock.NewMock()
	p := NewPoller(Options{Interval: 50 * time.Millisecond, Clock: mock, Logger: discardLogger()})
	t.Cleanup(func() { _ = p.Close() })

	return p, mock
}

func TestPoller_AddMissingFile(t *testing.T) {
	p, _ := newTestPoller(t)

	err := p.Add(filepath.Join(t.TempDir(), "missing.hs"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "watching")
	assert.Empty(t, p.WatchList())
}

func TestPoller_AddIsIdempotent(t *testing.T) {
	p, _ := newTestPoller(t)
	path := filepath.Join(t.TempDir(), "Main.hs")
	writeFile(t, path, "main = pure ()")

	require.NoError(t, p.Add(path))
	require.NoError(t, p.Add(path))
	assert.Equal(t, []string{path}, p.WatchList())
}

func TestPoller_AddNormalizesPath(t *testing.T) {
	p, _ := newTestPoller(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "Main.hs")
	writeFile(t, path, "x")

	require.NoError(t, p.Add(dir+"/./Main.hs"))
	assert.Equal(t, []string{path}, p.WatchList())
}

func TestPoller_RemoveUnwatched(t *testing.T) {
	p, _ := newTestPoller(t)

	err := p.Remove("never-added.hs")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotWatched)
}

func TestPoller_ReportsModify(t *testing.T) {
	p, mock := newTestPoller(t)
	path := filepath.Join(t.TempDir(), "Main.hs")
	writeFile(t, path, "one")
	require.NoError(t, p.Add(path))

	writeFile(t, path, "two plus more bytes")

	ev := nextEvent(t, mock, 50*time.Millisecond, p.Events())
	assert.Equal(t, Event{Path: path, Op: Modify}, ev)
}

func TestPoller_ReportsRemoveAndCreate(t *testing.T) {
	p, mock := newTestPoller(t)
	path := filepath.Join(t.TempDir(), "Main.hs")
	writeFile(t, path, "one")
	require.NoError(t, p.Add(path))

	require.NoError(t, os.Remove(path))
	ev := nextEvent(t, mock, 50*time.Millisecond, p.Events())
	assert.Equal(t, Remove, ev.Op)

	writeFile(t, path, "again")
	ev = nextEvent(t, mock, 50*time.Millisecond, p.Events())
	assert.Equal(t, Create, ev.Op)
}

func TestPoller_NoEventWithoutChange(t *testing.T) {
	p, mock := newTestPoller(t)
	path := filepath.Join(t.TempDir(), "Main.hs")
	writeFile(t, path, "one")
	require.NoError(t, p.Add(path))

	for range 5 {
		mock.Add(50 * time.Millisecond)
	}

	select {
	case ev := <-p.Events():
		t.Fatalf("unexpected event %v", ev)
	default:
	}
}

func TestPoller_RemovedPathStopsReporting(t *testing.T) {
	p, mock := newTestPoller(t)
	path := filepath.Join(t.TempDir(), "Main.hs")
	writeFile(t, path, "one")
	require.NoError(t, p.Add(path))
	require.NoError(t, p.Remove(path))

	writeFile(t, path, "two plus more bytes")

	for range 5 {
		mock.Add(50 * time.Millisecond)
	}

	select {
	case ev := <-p.Events():
		t.Fatalf("unexpected event %v", ev)
	default:
	}
}

func TestPoller_Closed(t *testing.T) {
	p, _ := newTestPoller(t)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	path := filepath.Join(t.TempDir(), "Main.hs")
	writeFile(t, path, "x")

	assert.True(t, errors.Is(p.Add(path), ErrClosed))
	assert.True(t, errors.Is(p.Remove(path), ErrClosed))
}

func TestDiffState(t *testing.T) {
	now := time.Now()
	base := fileState{exists: true, modTime: now, size: 3}

	tests := []struct {
		name       string
		prev, curr fileState
		want       Op
	}{
		{"unchanged", base, base, 0},
		{"mtime", base, fileState{exists: true, modTime: now.Add(time.Second), size: 3}, Modify},
		{"size", base, fileState{exists: true, modTime: now, size: 4}, Modify},
		{"removed", base, fileState{}, Remove},
		{"created", fileState{}, base, Create},
		{"still missing", fileState{}, fileState{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, diffState(tt.prev, tt.curr))
		})
	}
}

// ---------------------------------------------------------------------------
// FSNotifier (integration)
// ---------------------------------------------------------------------------

func TestFSNotifier_ReportsDebouncedModify(t *testing.T) {
	n, err := NewFSNotifier(Options{Interval: 20 * time.Millisecond, Logger: discardLogger()})
	require.NoError(t, err)
	defer n.Close()

	path := filepath.Join(t.TempDir(), "Main.hs")
	writeFile(t, path, "one")
	require.NoError(t, n.Add(path))
	assert.Equal(t, []string{path}, n.WatchList())

	writeFile(t, path, "two")

	select {
	case ev := <-n.Events():
		assert.Equal(t, path, ev.Path)
		assert.True(t, ev.Has(Modify))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for modify event")
	}
}

func TestFSNotifier_AddMissingFile(t *testing.T) {
	n, err := NewFSNotifier(Options{Logger: discardLogger()})
	require.NoError(t, err)
	defer n.Close()

	err = n.Add(filepath.Join(t.TempDir(), "missing.hs"))
	require.Error(t, err)
	assert.Empty(t, n.WatchList())
}

func TestFSNotifier_RemoveUnwatched(t *testing.T) {
	n, err := NewFSNotifier(Options{Logger: discardLogger()})
	require.NoError(t, err)
	defer n.Close()

	assert.ErrorIs(t, n.Remove("nope.hs"), ErrNotWatched)
}

func TestFSNotifier_AddRemove(t *testing.T) {
	n, err := NewFSNotifier(Options{Logger: discardLogger()})
	require.NoError(t, err)
	defer n.Close()

	path := filepath.Join(t.TempDir(), "Main.hs")
	writeFile(t, path, "x")

	require.NoError(t, n.Add(path))
	require.NoError(t, n.Add(path))
	require.NoError(t, n.Remove(path))
	assert.Empty(t, n.WatchList())
	assert.ErrorIs(t, n.Remove(path), ErrNotWatched)
}
