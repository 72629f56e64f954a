// This file implements the single-producer broadcast queue.
//
// Unlike BlockingQueue, where each value goes to exactly one consumer, a
// broadcast queue delivers the full stream to every listener. Values live in
// a singly-linked chain of fixed-size pages; each listener keeps its own
// cursor (page pointer, position within the page, absolute offset). The
// producer never blocks and never frees anything explicitly: a page stays
// reachable exactly as long as the producer's tail or some listener's cursor
// points at it or at a page before it, so the garbage collector provides the
// shared-ownership semantics.
//
// A listener created after N values have been pushed starts at offset N and
// observes only subsequent values. End-of-stream is by convention: the
// producer pushes a sentinel value the listeners recognize.
package docalign

import "sync"

// broadcastPageSize is the number of values per page.
const broadcastPageSize = 4096

type broadcastPage[T any] struct {
	data [broadcastPageSize]T
	next *broadcastPage[T]
}

type broadcastState[T any] struct {
	mu    sync.Mutex
	added sync.Cond

	tail     *broadcastPage[T] // page currently being filled
	writePos int               // next free slot in tail
	count    uint64            // total values pushed, guarded by mu
}

// waitFor blocks until more than offset values have been pushed.
func (q *broadcastState[T]) waitFor(offset uint64) {
	q.mu.Lock()
	for q.count <= offset {
		q.added.Wait()
	}
	q.mu.Unlock()
}

// BroadcastQueue is a single-producer queue whose every listener receives
// the complete stream of values pushed after it subscribed. Push must be
// called from one goroutine only; Listen and the listeners themselves are
// safe to use from any goroutine.
type BroadcastQueue[T any] struct {
	q *broadcastState[T]
}

// NewBroadcastQueue returns an empty broadcast queue.
func NewBroadcastQueue[T any]() *BroadcastQueue[T] {
	state := &broadcastState[T]{tail: &broadcastPage[T]{}}
	state.added.L = &state.mu
	return &BroadcastQueue[T]{q: state}
}

// Push appends v to the stream and wakes all listeners waiting for it.
func (b *BroadcastQueue[T]) Push(v T) {
	q := b.q
	q.tail.data[q.writePos] = v

	// If this filled the page, link the next one before publishing the
	// value: as soon as count is bumped a listener may walk past the page
	// boundary.
	if q.writePos++; q.writePos == broadcastPageSize {
		q.tail.next = &broadcastPage[T]{}
		q.tail = q.tail.next
		q.writePos = 0
	}

	q.mu.Lock()
	q.count++
	q.mu.Unlock()
	q.added.Broadcast()
}

// Listen subscribes a new listener positioned after everything pushed so
// far: it will observe exactly the values pushed from this moment on.
func (b *BroadcastQueue[T]) Listen() *BroadcastListener[T] {
	q := b.q
	q.mu.Lock()
	defer q.mu.Unlock()
	return &BroadcastListener[T]{
		q:      q,
		page:   q.tail,
		pos:    q.writePos,
		offset: q.count,
	}
}

// BroadcastListener is one consumer's cursor into the stream. Not safe for
// concurrent use by multiple goroutines.
type BroadcastListener[T any] struct {
	q      *broadcastState[T]
	page   *broadcastPage[T]
	pos    int
	offset uint64
}

// Pop returns the next value in the stream, blocking until the producer has
// pushed it.
func (l *BroadcastListener[T]) Pop() T {
	l.q.waitFor(l.offset)

	v := l.page.data[l.pos]
	l.offset++

	// Push guarantees the next page is linked before the value count that
	// points into it is published.
	if l.pos++; l.pos == broadcastPageSize {
		l.page = l.page.next
		l.pos = 0
	}
	return v
}
