package watch

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
)

// Supported notifier backends.
const (
	BackendPoll     = "poll"
	BackendFSNotify = "fsnotify"
)

const (
	// DefaultInterval is the poll period, and the debounce window of the
	// fsnotify backend.
	DefaultInterval = 50 * time.Millisecond

	eventBuffer = 64
	errorBuffer = 8
)

var (
	// ErrNotWatched is returned when removing a path that has no subscription.
	ErrNotWatched = errors.New("path is not watched")

	// ErrClosed is returned by operations on a closed notifier.
	ErrClosed = errors.New("notifier is closed")
)

// Op describes what happened to a watched file.
type Op uint8

const (
	// Create means a previously missing file appeared.
	Create Op = 1 << iota
	// Modify means the file contents (or metadata tied to them) changed.
	Modify
	// Remove means the file disappeared or was renamed away.
	Remove
)

func (op Op) String() string {
	var parts []string

	if op&Create != 0 {
		parts = append(parts, "CREATE")
	}

	if op&Modify != 0 {
		parts = append(parts, "MODIFY")
	}

	if op&Remove != 0 {
		parts = append(parts, "REMOVE")
	}

	if len(parts) == 0 {
		return "NONE"
	}

	return strings.Join(parts, "|")
}

// Event is a change notification for one subscribed path.
type Event struct {
	Path string
	Op   Op
}

// Has reports whether the event includes op.
func (e Event) Has(op Op) bool { return e.Op&op != 0 }

func (e Event) String() string { return fmt.Sprintf("%s %q", e.Op, e.Path) }

// Notifier watches a mutable set of file paths. Implementations are safe
// for concurrent use.
type Notifier interface {
	// Add subscribes path. Adding an already subscribed path is a no-op.
	Add(path string) error

	// Remove drops the subscription for path. It returns an error wrapping
	// ErrNotWatched when path is not subscribed.
	Remove(path string) error

	// WatchList returns the subscribed paths.
	WatchList() []string

	// Events delivers change notifications.
	Events() <-chan Event

	// Errors delivers non-fatal delivery errors.
	Errors() <-chan error

	// Close stops the notifier and releases its resources.
	Close() error
}

// Options configures a Notifier.
type Options struct {
	// Backend selects the implementation: BackendPoll or BackendFSNotify.
	Backend string

	// Interval is the poll period (poll backend) or debounce window
	// (fsnotify backend).
	Interval time.Duration

	// Clock drives tickers and timers. Tests substitute a mock.
	Clock clock.Clock

	// Logger is used for structured logging.
	Logger *slog.Logger
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Backend:  BackendPoll,
		Interval: DefaultInterval,
		Clock:    clock.New(),
		Logger:   slog.Default(),
	}
}

// New creates a Notifier for the configured backend. Zero fields of opts
// take their values from DefaultOptions.
func New(opts Options) (Notifier, error) {
	defaults := DefaultOptions()

	if opts.Clock == nil {
		opts.Clock = defaults.Clock
	}

	if opts.Logger == nil {
		opts.Logger = defaults.Logger
	}

	if opts.Interval <= 0 {
		opts.Interval = defaults.Interval
	}

	switch opts.Backend {
	case BackendPoll, "":
		return NewPoller(opts), nil
	case BackendFSNotify:
		return NewFSNotifier(opts)
	default:
		return nil, fmt.Errorf("unknown notifier backend %q: must be one of %s, %s",
			opts.Backend, BackendPoll, BackendFSNotify)
	}
}

func cleanPath(path string) string {
	return filepath.Clean(path)
}
