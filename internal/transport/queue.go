// internal/transport/queue.go
package transport

import "sync"

// Queue is an unbounded FIFO of events. Post never blocks, which matters for
// transports whose event callbacks run on the connection's read loop.
type Queue struct {
	mu      sync.Mutex
	pending []Event
	closed  bool
	wake    chan struct{}
	out     chan Event
	done    chan struct{}
}

// NewQueue starts the forwarding goroutine. Close must be called to stop it.
func NewQueue() *Queue {
	q := &Queue{
		wake: make(chan struct{}, 1),
		out:  make(chan Event),
		done: make(chan struct{}),
	}
	go q.forward()
	return q
}

// C returns the delivery channel. It is closed after Close once every
// queued event has been delivered or the consumer stops reading.
func (q *Queue) C() <-chan Event { return q.out }

// Post enqueues ev. Events posted after Close are dropped.
func (q *Queue) Post(ev Event) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.pending = append(q.pending, ev)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Close stops accepting events and releases the forwarder. Pending events
// are discarded if nobody is reading.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()
	close(q.done)
}

func (q *Queue) forward() {
	defer close(q.out)
	for {
		q.mu.Lock()
		batch := q.pending
		q.pending = nil
		q.mu.Unlock()

		for _, ev := range batch {
			select {
			case q.out <- ev:
			case <-q.done:
				return
			}
		}
		if len(batch) > 0 {
			continue
		}

		select {
		case <-q.wake:
		case <-q.done:
			return
		}
	}
}
