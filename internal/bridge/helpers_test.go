package bridge

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/hupe1980/replwatch/internal/watch"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// syncBuffer is a goroutine-safe bytes.Buffer that also records the mock
// time of every write when a clock is set.
type syncBuffer struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	clock  clock.Clock
	writes []time.Time
	closed bool
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, io.ErrClosedPipe
	}

	if b.clock != nil {
		b.writes = append(b.writes, b.clock.Now())
	}

	return b.buf.Write(p)
}

func (b *syncBuffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true

	return nil
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.String()
}

func (b *syncBuffer) WriteTimes() []time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()

	return slices.Clone(b.writes)
}

// fakeNotifier is an in-memory watch.Notifier.
type fakeNotifier struct {
	mu      sync.Mutex
	paths   map[string]bool
	missing map[string]bool
	adds    []string
	closed  bool
	events  chan watch.Event
	errors  chan error
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{
		paths:   map[string]bool{},
		missing: map[string]bool{},
		events:  make(chan watch.Event, 16),
		errors:  make(chan error, 4),
	}
}

func (n *fakeNotifier) Add(path string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.missing[path] {
		return fmt.Errorf("watching %q: no such file or directory", path)
	}

	n.adds = append(n.adds, path)
	n.paths[path] = true

	return nil
}

func (n *fakeNotifier) Remove(path string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.paths[path] {
		return fmt.Errorf("unwatching %q: %w", path, watch.ErrNotWatched)
	}

	delete(n.paths, path)

	return nil
}

func (n *fakeNotifier) WatchList() []string {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := make([]string, 0, len(n.paths))
	for p := range n.paths {
		out = append(out, p)
	}

	slices.Sort(out)

	return out
}

func (n *fakeNotifier) Adds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()

	return slices.Clone(n.adds)
}

func (n *fakeNotifier) Closed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.closed
}

func (n *fakeNotifier) Events() <-chan watch.Event { return n.events }
func (n *fakeNotifier) Errors() <-chan error       { return n.errors }

func (n *fakeNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.closed = true

	return nil
}

// fakeSupervisor hands a recording buffer to the dispatcher and exits with
// whatever status is sent on exit.
type fakeSupervisor struct {
	input   *syncBuffer
	exit    chan int
	started chan struct{}
	killed  chan struct{}
}

func newFakeSupervisor() *fakeSupervisor {
	return &fakeSupervisor{
		input:   &syncBuffer{},
		exit:    make(chan int, 1),
		started: make(chan struct{}),
		killed:  make(chan struct{}),
	}
}

func (s *fakeSupervisor) Run(ctx context.Context, handoff chan<- io.WriteCloser) (int, error) {
	handoff <- s.input
	close(s.started)

	select {
	case code := <-s.exit:
		_ = s.input.Close()
		return code, nil
	case <-ctx.Done():
		close(s.killed)
		return -1, nil
	}
}

// nopWriteCloser adapts a writer to io.WriteCloser.
type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
