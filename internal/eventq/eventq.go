// Package eventq provides the bounded, ordered queue that carries stack events
// from the adapter's goroutines to the single-threaded session loop.
package eventq

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("eventq: queue closed")

// Queue is a bounded channel-like buffer with two producer policies:
//
//   - Send blocks until there is room, so protocol events are never lost
//   - TrySend drops the new value when the buffer is full, for high-rate
//     best-effort producers such as advertisement reports
//
// Values are delivered in the order they were accepted.
//
// # Example
//
//	q := eventq.New[device.Event](256)
//	go func() {
//	    _ = q.Send(ctx, device.BootEvent{})
//	}()
//	for ev := range q.C() {
//	    controller.HandleEvent(ev)
//	}
//
// Close may be called concurrently with producers; blocked senders are released
// with ErrClosed and the channel returned by C is closed afterwards.
type Queue[T any] struct {
	ch      chan T
	done    chan struct{}
	mu      sync.RWMutex
	closed  bool
	once    sync.Once
	metrics Metrics // lock-free metrics tracking
}

// New creates a Queue with the given capacity.
func New[T any](capacity int) *Queue[T] {
	if capacity <= 0 {
		panic("eventq: capacity must be > 0")
	}
	return &Queue[T]{
		ch:   make(chan T, capacity),
		done: make(chan struct{}),
	}
}

// C returns the receive side of the queue. It is closed by Close.
func (q *Queue[T]) C() <-chan T {
	return q.ch
}

// Send enqueues v, blocking until there is room, ctx is done or the queue is closed.
func (q *Queue[T]) Send(ctx context.Context, v T) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}

	select {
	case q.ch <- v:
		q.metrics.addWritten(1)
		return nil
	case <-ctx.Done():
		q.metrics.addError()
		return ctx.Err()
	case <-q.done:
		return ErrClosed
	}
}

// TrySend enqueues v without blocking. Returns false if the buffer is full or
// the queue is closed; the value is then dropped.
func (q *Queue[T]) TrySend(v T) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return false
	}

	select {
	case q.ch <- v:
		q.metrics.addWritten(1)
		return true
	default:
		q.metrics.addDropped(1)
		return false
	}
}

// Drain discards everything currently buffered and returns the number of values dropped.
func (q *Queue[T]) Drain() int {
	n := 0
	for {
		select {
		case _, ok := <-q.ch:
			if !ok {
				return n
			}
			n++
		default:
			if n > 0 {
				q.metrics.addDropped(n)
			}
			return n
		}
	}
}

// Len returns the number of buffered elements.
func (q *Queue[T]) Len() int {
	return len(q.ch)
}

// Cap returns the queue capacity.
func (q *Queue[T]) Cap() int {
	return cap(q.ch)
}

// Close releases blocked senders and closes the receive channel. It is idempotent.
func (q *Queue[T]) Close() {
	q.once.Do(func() {
		close(q.done)
		q.mu.Lock()
		q.closed = true
		close(q.ch)
		q.mu.Unlock()
	})
}

// GetMetrics returns a snapshot of current metrics values.
func (q *Queue[T]) GetMetrics() Metrics {
	return Metrics{
		Written: atomic.LoadInt64(&q.metrics.Written),
		Dropped: atomic.LoadInt64(&q.metrics.Dropped),
		Errors:  atomic.LoadInt64(&q.metrics.Errors),
	}
}

// Metrics provides lock-free counters for a Queue.
type Metrics struct {
	Written int64 // accepted by Send or TrySend
	Dropped int64 // rejected by TrySend or discarded by Drain
	Errors  int64 // Send aborted by its context
}

func (m *Metrics) addWritten(n int) {
	atomic.AddInt64(&m.Written, int64(n))
}

func (m *Metrics) addDropped(n int) {
	atomic.AddInt64(&m.Dropped, int64(n))
}

func (m *Metrics) addError() {
	atomic.AddInt64(&m.Errors, 1)
}
