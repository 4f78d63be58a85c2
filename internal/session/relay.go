package session

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"
)

// Relay bridges push-style fragment emission into a pull-style sequence. The producer runs on its own
// goroutine and appends fragments to an unbounded FIFO queue; the consumer ranges over Tokens.
type Relay struct {
	queue    *tokenQueue
	consumed atomic.Bool

	done chan struct{}
	err  error
}

// StartRelay runs produce on a new goroutine and returns the relay that carries its fragments. The end of
// stream is marked exactly once when produce returns, errors or panics.
func StartRelay(produce func(sink func(string)) error) *Relay {
	r := &Relay{
		queue: newTokenQueue(),
		done:  make(chan struct{}),
	}

	go func() {
		defer close(r.done)
		defer r.queue.close()
		defer func() {
			if p := recover(); p != nil {
				r.err = fmt.Errorf("producer panicked: %v", p)
			}
		}()

		r.err = produce(r.queue.push)
	}()

	return r
}

// Tokens returns a single-pass sequence of fragments in the order they were produced. It ends when the
// producer completes, or when ctx is done; the latter only stops the consumer, never the producer. Ranging
// over the sequence a second time yields nothing.
func (r *Relay) Tokens(ctx context.Context) iter.Seq[string] {
	return func(yield func(string) bool) {
		if !r.consumed.CompareAndSwap(false, true) {
			return
		}
		for {
			token, ok := r.queue.pop(ctx)
			if !ok {
				return
			}
			if !yield(token) {
				return
			}
		}
	}
}

// Done returns a channel that is closed once the producer has completed.
func (r *Relay) Done() <-chan struct{} {
	return r.done
}

// Err returns the producer's error. It is only meaningful after Done is closed.
func (r *Relay) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

type tokenQueue struct {
	mu     sync.Mutex
	items  []string
	closed bool

	// ready holds at most one pending wake-up for the consumer.
	ready chan struct{}
}

func newTokenQueue() *tokenQueue {
	return &tokenQueue{
		ready: make(chan struct{}, 1),
	}
}

func (q *tokenQueue) push(token string) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, token)
	q.mu.Unlock()
	q.signal()
}

func (q *tokenQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

func (q *tokenQueue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// pop blocks until a token is available. It returns false once the queue is closed and drained, or when
// ctx is done.
func (q *tokenQueue) pop(ctx context.Context) (string, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			token := q.items[0]
			q.items[0] = ""
			q.items = q.items[1:]
			q.mu.Unlock()
			return token, true
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return "", false
		}

		select {
		case <-q.ready:
		case <-ctx.Done():
			return "", false
		}
	}
}
