package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/hupe1980/replwatch/internal/script"
	"github.com/hupe1980/replwatch/internal/watch"
)

// ChangeWatcher turns file modifications into reload scripts.
type ChangeWatcher struct {
	notifier watch.Notifier
	queue    *Queue
	logger   *slog.Logger
}

// NewChangeWatcher creates a watcher that feeds queue from notifier.
func NewChangeWatcher(notifier watch.Notifier, queue *Queue, logger *slog.Logger) *ChangeWatcher {
	if logger == nil {
		logger = slog.Default()
	}

	return &ChangeWatcher{notifier: notifier, queue: queue, logger: logger}
}

// Run handles notifier events until ctx is done. An unreadable watched file
// is fatal; notifier errors are logged and skipped.
func (w *ChangeWatcher) Run(ctx context.Context) error {
	events := w.notifier.Events()
	errs := w.notifier.Errors()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-events:
			if !ok {
				return nil
			}

			if !ev.Has(watch.Modify) {
				w.logger.Debug("ignoring event", slog.String("path", ev.Path), slog.String("op", ev.Op.String()))
				continue
			}

			if err := w.Reload(ev.Path); err != nil {
				return err
			}

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}

			w.logger.Warn("watch error", slog.String("error", err.Error()))
		}
	}
}

// Reload reads path and enqueues its reload script as one contiguous run.
func (w *ChangeWatcher) Reload(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("could not open watched file %q: %w", path, err)
	}

	msgs := ReloadMessages(path, string(data))
	w.queue.PushAll(msgs...)

	w.logger.Debug("reload queued", slog.String("path", path), slog.Int("commands", len(msgs)-1))

	return nil
}

// ReloadMessages builds the messages for one reload of path with the given
// contents: the load command followed by every extracted script line.
func ReloadMessages(path, text string) []Message {
	lines := script.Extract(text).Lines()

	msgs := make([]Message, 0, len(lines)+1)
	msgs = append(msgs, SynthesizedMessage(LoadCommand(path)))

	for _, line := range lines {
		msgs = append(msgs, SynthesizedMessage(line))
	}

	return msgs
}
