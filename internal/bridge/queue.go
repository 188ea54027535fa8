package bridge

import (
	"context"
	"sync"

	"github.com/emirpasic/gods/queues/linkedlistqueue"
)

// Queue is an unbounded multi-producer, single-consumer FIFO of messages.
// Producers never block. Messages pushed together with PushAll are
// delivered contiguously.
type Queue struct {
	mu     sync.Mutex
	items  *linkedlistqueue.Queue
	ready  chan struct{}
	closed bool
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{
		items: linkedlistqueue.New(),
		ready: make(chan struct{}, 1),
	}
}

// Push appends msg.
func (q *Queue) Push(msg Message) {
	q.PushAll(msg)
}

// PushAll appends msgs as one contiguous run. Pushing to a closed queue
// drops the messages.
func (q *Queue) PushAll(msgs ...Message) {
	if len(msgs) == 0 {
		return
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}

	for _, m := range msgs {
		q.items.Enqueue(m)
	}
	q.mu.Unlock()

	q.signal()
}

// Pop blocks until a message is available, the queue is closed and
// drained, or ctx is done. ok is false in the latter two cases.
func (q *Queue) Pop(ctx context.Context) (msg Message, ok bool) {
	for {
		q.mu.Lock()
		if v, found := q.items.Dequeue(); found {
			more := !q.items.Empty()
			q.mu.Unlock()

			if more {
				q.signal()
			}

			return v.(Message), true
		}

		closed := q.closed
		q.mu.Unlock()

		if closed {
			return Message{}, false
		}

		select {
		case <-q.ready:
		case <-ctx.Done():
			return Message{}, false
		}
	}
}

// Len returns the number of queued messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.items.Size()
}

// Close stops accepting messages. Queued messages can still be popped.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.signal()
}

func (q *Queue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
