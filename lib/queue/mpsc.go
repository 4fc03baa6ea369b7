package queue

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// node represents a single element in the queue
type node[T any] struct {
	value *T
	next  atomic.Pointer[node[T]]
}

// MPSC is a lock-free multi-producer single-consumer queue backed by a
// linked list of nodes appended with CAS operations.
type MPSC[T any] struct {
	head      atomic.Pointer[node[T]]
	tail      atomic.Pointer[node[T]]
	out       chan *T
	consumer  sync.WaitGroup
	closed    atomic.Bool
	producers atomic.Int32

	// Condition variable for efficient waiting
	mu   sync.Mutex
	cond *sync.Cond
}

// NewMPSC creates a new lock-free multi-producer single-consumer queue
func NewMPSC[T any]() *MPSC[T] {
	// Sentinel node at the beginning
	sentinel := &node[T]{}

	q := &MPSC[T]{
		out: make(chan *T),
	}
	q.cond = sync.NewCond(&q.mu)

	q.head.Store(sentinel)
	q.tail.Store(sentinel)

	q.consumer.Add(1)
	go q.consume()

	return q
}

// Push adds an item to the queue.
// Returns true if the item was added, or false if the queue is closed.
//
// Thread-safety: safe to call concurrently from any number of goroutines.
func (q *MPSC[T]) Push(value *T) bool {
	if value == nil {
		return false
	}

	// Count in before the closed check so the consumer cannot observe
	// closed-and-empty while an accepted push is still linking its node
	q.producers.Add(1)
	defer q.producers.Add(-1)

	if q.closed.Load() {
		return false
	}

	newNode := &node[T]{value: value}

	var backoff uint8 = 0
	for {
		tailNode := q.tail.Load()

		next := tailNode.next.Load()
		if next == nil {
			// tail has no next node yet, try to append ours
			if tailNode.next.CompareAndSwap(nil, newNode) {
				// CAS on tail may fail if another producer helped; the
				// tail still converges eventually
				q.tail.CompareAndSwap(tailNode, newNode)

				q.cond.Signal()
				return true
			}
		} else {
			// help update the tail pointer for a producer that appended
			// but has not advanced tail yet
			q.tail.CompareAndSwap(tailNode, next)
		}

		// exponential backoff under contention, spinning first and
		// yielding once the retry count grows
		if backoff < 10 {
			backoff++
			for i := 0; i < 1<<backoff; i++ {
				runtime.Gosched()
			}
		}
		runtime.Gosched()
	}
}

// consume moves items from the linked list to the output channel
func (q *MPSC[T]) consume() {
	defer q.consumer.Done()
	defer close(q.out)

	for {
		hasItems := false

		for {
			head := q.head.Load()
			next := head.next.Load()

			if next == nil {
				break // no more items available
			}

			hasItems = true
			value := next.value

			// move head pointer (frees the old node)
			q.head.Store(next)

			q.out <- value

			// safe to clear after sending
			next.value = nil
		}

		if !hasItems && q.closed.Load() {
			if q.producers.Load() != 0 {
				// A producer raced the close and may still be linking
				runtime.Gosched()
				continue
			}
			// Once the counter is zero with the queue closed, any later
			// push fails its closed check. One final emptiness re-check
			// catches a node linked after the drain loop above.
			if q.head.Load().next.Load() == nil {
				return
			}
			continue
		}

		if !hasItems {
			q.mu.Lock()
			// double-check after acquiring the lock
			head := q.head.Load()
			if head.next.Load() == nil && !q.closed.Load() {
				q.cond.Wait()
			}
			q.mu.Unlock()
		}
	}
}

// Recv returns a receive-only channel for consuming from the queue.
func (q *MPSC[T]) Recv() <-chan *T {
	return q.out
}

// Close closes the queue, preventing further writes.
// Items already queued are still delivered to the consumer.
func (q *MPSC[T]) Close() {
	q.closed.Store(true)
	q.cond.Signal()
}

// IsClosed returns true if the queue is closed.
func (q *MPSC[T]) IsClosed() bool {
	return q.closed.Load()
}
