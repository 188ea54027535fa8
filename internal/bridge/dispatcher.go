package bridge

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/hupe1980/replwatch/internal/watch"
)

// DefaultPace is the delay before each synthesized write. It lets the
// interpreter finish echoing the previous line and print its prompt.
const DefaultPace = 100 * time.Millisecond

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	Queue    *Queue
	Handoff  <-chan io.WriteCloser
	Notifier watch.Notifier

	// Watched is the initial watch set. Every entry must already be
	// subscribed on Notifier.
	Watched *WatchSet

	// Echo receives synthesized lines so the user sees what was injected.
	Echo io.Writer

	// Pace is the delay before each synthesized write.
	Pace time.Duration

	Clock  clock.Clock
	Logger *slog.Logger
}

// Dispatcher is the single consumer of the queue and the only writer to
// the interpreter's input. It owns the watch set.
type Dispatcher struct {
	queue    *Queue
	handoff  <-chan io.WriteCloser
	notifier watch.Notifier
	watched  *WatchSet
	echo     io.Writer
	pace     time.Duration
	clock    clock.Clock
	logger   *slog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(opts DispatcherOptions) *Dispatcher {
	if opts.Watched == nil {
		opts.Watched = NewWatchSet()
	}

	if opts.Echo == nil {
		opts.Echo = io.Discard
	}

	if opts.Clock == nil {
		opts.Clock = clock.New()
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Dispatcher{
		queue:    opts.Queue,
		handoff:  opts.Handoff,
		notifier: opts.Notifier,
		watched:  opts.Watched,
		echo:     opts.Echo,
		pace:     opts.Pace,
		clock:    opts.Clock,
		logger:   opts.Logger,
	}
}

// Run waits for the interpreter's input handle, then drains the queue until
// ctx is done or the queue is closed. A failed watch-set change is fatal.
func (d *Dispatcher) Run(ctx context.Context) error {
	var in io.WriteCloser

	select {
	case in = <-d.handoff:
	case <-ctx.Done():
		return nil
	}

	defer in.Close()

	d.logger.Debug("interpreter input acquired", slog.Int("queued", d.queue.Len()))

	for {
		msg, ok := d.queue.Pop(ctx)
		if !ok {
			return nil
		}

		delivered, err := d.dispatch(ctx, in, msg)
		if err != nil {
			return err
		}

		if !delivered {
			return nil
		}
	}
}

// dispatch handles one message. delivered is false when the interpreter's
// input is gone or ctx ended during pacing; the caller stops draining.
func (d *Dispatcher) dispatch(ctx context.Context, in io.Writer, msg Message) (delivered bool, err error) {
	if msg.Kind == Synthesized && !d.wait(ctx) {
		return false, nil
	}

	if _, werr := in.Write(msg.Data); werr != nil {
		// The interpreter is exiting; its supervisor reports the status.
		d.logger.Warn("interpreter input closed", slog.String("error", werr.Error()))
		return false, nil
	}

	switch msg.Kind {
	case Synthesized:
		fmt.Fprint(d.echo, msg.Display())
	case Raw:
		if err := d.intercept(msg); err != nil {
			return true, err
		}
	}

	return true, nil
}

func (d *Dispatcher) wait(ctx context.Context) bool {
	if d.pace <= 0 {
		return true
	}

	select {
	case <-d.clock.After(d.pace):
		return true
	case <-ctx.Done():
		return false
	}
}

func (d *Dispatcher) intercept(msg Message) error {
	text, ok := msg.Text()
	if !ok {
		return nil
	}

	dir, ok := ParseDirective(text)
	if !ok {
		return nil
	}

	switch dir.Kind {
	case Load:
		return d.load(dir.Path)
	case Unload:
		return d.unload(dir.Path)
	}

	return nil
}

func (d *Dispatcher) load(path string) error {
	if d.watched.Contains(path) {
		d.logger.Debug("already watching", slog.String("path", path))
		return nil
	}

	if err := d.notifier.Add(path); err != nil {
		return fmt.Errorf("could not find file to watch: %w", err)
	}

	d.watched.Add(path)
	d.logger.Info("watching", slog.String("path", path), slog.Int("watched", d.watched.Len()))
	d.logger.Debug("watch set changed", slog.Any("paths", d.watched.Paths()))

	return nil
}

// unload is strict where load is lenient: removing a path that is not
// watched is an error.
func (d *Dispatcher) unload(path string) error {
	if err := d.notifier.Remove(path); err != nil {
		return fmt.Errorf("could not unwatch the file: %w", err)
	}

	d.watched.Remove(path)
	d.logger.Info("stopped watching", slog.String("path", path), slog.Int("watched", d.watched.Len()))
	d.logger.Debug("watch set changed", slog.Any("paths", d.watched.Paths()))

	return nil
}
