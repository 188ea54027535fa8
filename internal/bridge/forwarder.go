package bridge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/muesli/cancelreader"
)

// ChunkSize is the largest console read forwarded as one message.
const ChunkSize = 128

// EOFMarker is echoed when the console reaches end of input.
const EOFMarker = "<eof>"

type readResult struct {
	data []byte
	err  error
}

// Forwarder turns console input into Raw messages.
type Forwarder struct {
	in     io.Reader
	queue  *Queue
	out    io.Writer
	logger *slog.Logger
}

// NewForwarder creates a forwarder reading from in. out receives the
// end-of-input marker. A nil in behaves like an empty console.
func NewForwarder(in io.Reader, queue *Queue, out io.Writer, logger *slog.Logger) *Forwarder {
	if in == nil {
		in = bytes.NewReader(nil)
	}

	if out == nil {
		out = io.Discard
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Forwarder{in: in, queue: queue, out: out, logger: logger}
}

// Run forwards input until end of input, a read error, or ctx is done.
// End of input returns nil; it does not end the session.
func (f *Forwarder) Run(ctx context.Context) error {
	results := make(chan readResult)
	done := make(chan struct{})
	defer close(done)

	go f.readLoop(results, done)

	for {
		select {
		case <-ctx.Done():
			if cr, ok := f.in.(cancelreader.CancelReader); ok {
				cr.Cancel()
			}

			return nil

		case r := <-results:
			if len(r.data) > 0 {
				f.queue.Push(Message{Kind: Raw, Data: r.data})
			}

			switch {
			case r.err == nil:
				continue
			case errors.Is(r.err, io.EOF):
				fmt.Fprintln(f.out, EOFMarker)
				f.logger.Info("console input closed")

				return nil
			case errors.Is(r.err, cancelreader.ErrCanceled):
				return nil
			default:
				return fmt.Errorf("reading input: %w", r.err)
			}
		}
	}
}

func (f *Forwarder) readLoop(results chan<- readResult, done <-chan struct{}) {
	buf := make([]byte, ChunkSize)

	for {
		n, err := f.in.Read(buf)

		var data []byte
		if n > 0 {
			data = append([]byte(nil), buf[:n]...)
		}

		if data == nil && err == nil {
			continue
		}

		select {
		case results <- readResult{data: data, err: err}:
		case <-done:
			return
		}

		if err != nil {
			return
		}
	}
}
