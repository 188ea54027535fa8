package watch

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// FSNotifier is a Notifier backed by native filesystem notifications.
// Writes are debounced per path so an editor's burst of writes produces a
// single Modify event.
//
// Files are watched directly, not through their parent directory, so an
// editor that saves by renaming a temporary file over the original ends the
// subscription; use the poll backend with such editors.
type FSNotifier struct {
	watcher   *fsnotify.Watcher
	debouncer *Debouncer
	logger    *slog.Logger

	mu     sync.Mutex
	paths  map[string]struct{}
	closed bool

	events chan Event
	errors chan error
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewFSNotifier starts an fsnotify-backed notifier.
func NewFSNotifier(opts Options) (*FSNotifier, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	n := &FSNotifier{
		watcher: w,
		logger:  opts.Logger,
		paths:   make(map[string]struct{}),
		events:  make(chan Event, eventBuffer),
		errors:  make(chan error, errorBuffer),
		done:    make(chan struct{}),
	}

	n.debouncer = NewDebouncer(opts.Interval, opts.Clock, func(path string) {
		n.emit(Event{Path: path, Op: Modify})
	})

	n.wg.Add(1)

	go n.run()

	return n, nil
}

// Add subscribes path.
func (n *FSNotifier) Add(path string) error {
	path = cleanPath(path)

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return ErrClosed
	}

	if _, ok := n.paths[path]; ok {
		return nil
	}

	if err := n.watcher.Add(path); err != nil {
		return fmt.Errorf("watching %q: %w", path, err)
	}

	n.paths[path] = struct{}{}
	n.logger.Debug("watch added", slog.String("path", path), slog.Int("active_watches", len(n.paths)))

	return nil
}

// Remove drops the subscription for path.
func (n *FSNotifier) Remove(path string) error {
	path = cleanPath(path)

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return ErrClosed
	}

	if _, ok := n.paths[path]; !ok {
		return fmt.Errorf("unwatching %q: %w", path, ErrNotWatched)
	}

	delete(n.paths, path)

	// The kernel drops the watch by itself when the file is deleted.
	if err := n.watcher.Remove(path); err != nil {
		n.logger.Debug("watch remove failed", slog.String("path", path), slog.String("error", err.Error()))
	}

	n.logger.Debug("watch removed", slog.String("path", path), slog.Int("active_watches", len(n.paths)))

	return nil
}

// WatchList returns the subscribed paths in sorted order.
func (n *FSNotifier) WatchList() []string {
	n.mu.Lock()
	defer n.mu.Unlock()

	paths := make([]string, 0, len(n.paths))
	for path := range n.paths {
		paths = append(paths, path)
	}

	slices.Sort(paths)

	return paths
}

// Events delivers change notifications.
func (n *FSNotifier) Events() <-chan Event { return n.events }

// Errors delivers errors reported by the OS watcher.
func (n *FSNotifier) Errors() <-chan error { return n.errors }

// Close stops the notifier. It is safe to call more than once.
func (n *FSNotifier) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}

	n.closed = true
	n.mu.Unlock()

	n.debouncer.Stop()
	close(n.done)
	err := n.watcher.Close()
	n.wg.Wait()

	return err
}

func (n *FSNotifier) run() {
	defer n.wg.Done()

	for {
		select {
		case <-n.done:
			return

		case event, ok := <-n.watcher.Events:
			if !ok {
				return
			}

			n.handle(event)

		case err, ok := <-n.watcher.Errors:
			if !ok {
				return
			}

			select {
			case n.errors <- err:
			case <-n.done:
				return
			}
		}
	}
}

func (n *FSNotifier) handle(event fsnotify.Event) {
	path := cleanPath(event.Name)

	n.mu.Lock()
	_, watched := n.paths[path]
	n.mu.Unlock()

	if !watched {
		return
	}

	op := translateOp(event.Op)

	switch {
	case op == 0:
		return
	case op == Modify:
		n.debouncer.Trigger(path)
	default:
		n.emit(Event{Path: path, Op: op})
	}
}

func (n *FSNotifier) emit(ev Event) {
	select {
	case n.events <- ev:
	case <-n.done:
	}
}

// translateOp maps fsnotify operations onto Op. Chmod alone is dropped.
func translateOp(op fsnotify.Op) Op {
	var out Op

	if op.Has(fsnotify.Create) {
		out |= Create
	}

	if op.Has(fsnotify.Write) {
		out |= Modify
	}

	if op.Has(fsnotify.Remove) || op.Has(fsnotify.Rename) {
		out |= Remove
	}

	return out
}
