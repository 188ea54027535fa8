package watch

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// fileState is the last observed stat of a subscribed file.
type fileState struct {
	exists  bool
	modTime time.Time
	size    int64
}

func statFile(path string) (fileState, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fileState{}, nil
		}

		return fileState{}, err
	}

	return fileState{exists: true, modTime: info.ModTime(), size: info.Size()}, nil
}

// Poller is a Notifier that stats every subscribed file once per interval
// and reports differences against the previous observation.
type Poller struct {
	interval time.Duration
	logger   *slog.Logger
	ticker   *clock.Ticker

	mu     sync.Mutex
	files  map[string]fileState
	closed bool

	events chan Event
	errors chan error
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewPoller starts a polling notifier.
func NewPoller(opts Options) *Poller {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}

	p := &Poller{
		interval: opts.Interval,
		logger:   opts.Logger,
		ticker:   opts.Clock.Ticker(opts.Interval),
		files:    make(map[string]fileState),
		events:   make(chan Event, eventBuffer),
		errors:   make(chan error, errorBuffer),
		done:     make(chan struct{}),
	}

	p.wg.Add(1)

	go p.run()

	return p
}

// Add subscribes path. The file must exist.
func (p *Poller) Add(path string) error {
	path = cleanPath(path)

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("watching %q: %w", path, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	if _, ok := p.files[path]; ok {
		return nil
	}

	p.files[path] = fileState{exists: true, modTime: info.ModTime(), size: info.Size()}
	p.logger.Debug("watch added", slog.String("path", path), slog.Int("active_watches", len(p.files)))

	return nil
}

// Remove drops the subscription for path.
func (p *Poller) Remove(path string) error {
	path = cleanPath(path)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	if _, ok := p.files[path]; !ok {
		return fmt.Errorf("unwatching %q: %w", path, ErrNotWatched)
	}

	delete(p.files, path)
	p.logger.Debug("watch removed", slog.String("path", path), slog.Int("active_watches", len(p.files)))

	return nil
}

// WatchList returns the subscribed paths in sorted order.
func (p *Poller) WatchList() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	paths := make([]string, 0, len(p.files))
	for path := range p.files {
		paths = append(paths, path)
	}

	slices.Sort(paths)

	return paths
}

// Events delivers change notifications.
func (p *Poller) Events() <-chan Event { return p.events }

// Errors delivers stat failures other than a missing file.
func (p *Poller) Errors() <-chan error { return p.errors }

// Close stops polling. It is safe to call more than once.
func (p *Poller) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}

	p.closed = true
	p.mu.Unlock()

	p.ticker.Stop()
	close(p.done)
	p.wg.Wait()

	return nil
}

func (p *Poller) run() {
	defer p.wg.Done()

	for {
		select {
		case <-p.done:
			return
		case <-p.ticker.C:
			if !p.scan() {
				return
			}
		}
	}
}

// scan compares every subscribed file with its previous state. It returns
// false once the poller has been closed.
func (p *Poller) scan() bool {
	p.mu.Lock()
	snapshot := make(map[string]fileState, len(p.files))
	for path, st := range p.files {
		snapshot[path] = st
	}
	p.mu.Unlock()

	for _, path := range sortedKeys(snapshot) {
		prev := snapshot[path]

		curr, err := statFile(path)
		if err != nil {
			if !p.sendError(fmt.Errorf("polling %q: %w", path, err)) {
				return false
			}

			continue
		}

		op := diffState(prev, curr)

		p.mu.Lock()
		if _, ok := p.files[path]; ok {
			p.files[path] = curr
		} else {
			// Unsubscribed while we were stat-ing.
			op = 0
		}
		p.mu.Unlock()

		if op == 0 {
			continue
		}

		if !p.sendEvent(Event{Path: path, Op: op}) {
			return false
		}
	}

	return true
}

func (p *Poller) sendEvent(ev Event) bool {
	select {
	case p.events <- ev:
		return true
	case <-p.done:
		return false
	}
}

func (p *Poller) sendError(err error) bool {
	select {
	case p.errors <- err:
		return true
	case <-p.done:
		return false
	}
}

func diffState(prev, curr fileState) Op {
	switch {
	case prev.exists && !curr.exists:
		return Remove
	case !prev.exists && curr.exists:
		return Create
	case !curr.exists:
		return 0
	case !prev.modTime.Equal(curr.modTime) || prev.size != curr.size:
		return Modify
	default:
		return 0
	}
}

func sortedKeys(m map[string]fileState) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	slices.Sort(keys)

	return keys
}
