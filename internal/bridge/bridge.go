package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/replwatch/internal/watch"
)

// Supervisor owns the child interpreter. Run starts it, sends its input
// handle on handoff exactly once, and blocks until it exits, returning its
// exit status.
type Supervisor interface {
	Run(ctx context.Context, handoff chan<- io.WriteCloser) (int, error)
}

// errChildExited ends the errgroup when the interpreter terminates.
var errChildExited = errors.New("interpreter exited")

// Options configures a Bridge.
type Options struct {
	// Input is the interactive console.
	Input io.Reader

	// Echo receives synthesized lines and the end-of-input marker.
	Echo io.Writer

	// Notifier delivers changes for watched files. The bridge closes it
	// when Run returns.
	Notifier watch.Notifier

	// Supervisor runs the child interpreter.
	Supervisor Supervisor

	// InitialPath, when set, is watched and reloaded at startup.
	InitialPath string

	// Pace is the delay before each synthesized write.
	Pace time.Duration

	Clock  clock.Clock
	Logger *slog.Logger
}

// Bridge wires the forwarder, change watcher, dispatcher and child
// supervisor around one message queue.
type Bridge struct {
	queue      *Queue
	handoff    chan io.WriteCloser
	notifier   watch.Notifier
	supervisor Supervisor
	forwarder  *Forwarder
	watcher    *ChangeWatcher
	dispatcher *Dispatcher
	logger     *slog.Logger
}

// New builds a Bridge. When opts.InitialPath is set it is subscribed and
// its reload script is queued; both failures are returned as errors.
func New(opts Options) (*Bridge, error) {
	if opts.Notifier == nil {
		return nil, errors.New("notifier is required")
	}

	if opts.Supervisor == nil {
		return nil, errors.New("supervisor is required")
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.Clock == nil {
		opts.Clock = clock.New()
	}

	queue := NewQueue()
	handoff := make(chan io.WriteCloser, 1)
	watched := NewWatchSet()
	watcher := NewChangeWatcher(opts.Notifier, queue, opts.Logger)

	if path := NormalizePath(opts.InitialPath); path != "" {
		if err := opts.Notifier.Add(path); err != nil {
			return nil, fmt.Errorf("could not find file to watch: %w", err)
		}

		watched.Add(path)

		if err := watcher.Reload(path); err != nil {
			return nil, err
		}
	}

	return &Bridge{
		queue:      queue,
		handoff:    handoff,
		notifier:   opts.Notifier,
		supervisor: opts.Supervisor,
		forwarder:  NewForwarder(opts.Input, queue, opts.Echo, opts.Logger),
		watcher:    watcher,
		dispatcher: NewDispatcher(DispatcherOptions{
			Queue:    queue,
			Handoff:  handoff,
			Notifier: opts.Notifier,
			Watched:  watched,
			Echo:     opts.Echo,
			Pace:     opts.Pace,
			Clock:    opts.Clock,
			Logger:   opts.Logger,
		}),
		logger: opts.Logger,
	}, nil
}

// Run starts every unit and blocks until the interpreter exits, returning
// its exit status. A fatal error in any unit stops the interpreter and is
// returned instead. End of console input does not end Run.
func (b *Bridge) Run(ctx context.Context) (int, error) {
	defer b.notifier.Close()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return b.forwarder.Run(gctx) })
	g.Go(func() error { return b.watcher.Run(gctx) })
	g.Go(func() error { return b.dispatcher.Run(gctx) })

	var status int

	g.Go(func() error {
		code, err := b.supervisor.Run(gctx, b.handoff)
		if err != nil {
			return err
		}

		status = code

		return errChildExited
	})

	err := g.Wait()
	b.queue.Close()

	switch {
	case errors.Is(err, errChildExited):
		b.logger.Debug("interpreter exited", slog.Int("status", status))
		return status, nil
	case err != nil:
		return 1, err
	default:
		return status, nil
	}
}
