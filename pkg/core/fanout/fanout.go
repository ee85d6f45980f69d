// Package fanout duplicates one stream into two independent consumers.
//
// The upstream (a model token stream) is not replayable and must be consumed
// exactly once even though two pipelines (raw text delivery and audio
// derivation) both need every item. A single pump goroutine drains the
// source and appends each item to two per-consumer FIFO queues.
//
// The queues are unbounded: a slow consumer never stalls the other, at the
// cost of unbounded memory growth if a consumer falls arbitrarily far
// behind. Callers that need stricter memory bounds should bound the source
// instead.
package fanout

import (
	"context"
	"sync"
)

// Reader is one consumer side of a duplicated stream. It is consumed once
// and is not seekable. A Reader is safe for a single consumer goroutine;
// only the pump appends to it.
type Reader[T any] struct {
	mu     sync.Mutex
	items  []T
	head   int
	closed bool
	notify chan struct{}
}

func newReader[T any]() *Reader[T] {
	return &Reader[T]{notify: make(chan struct{}, 1)}
}

// Next blocks until an item is available, the stream is closed, or ctx is
// done. It returns ok=false with a nil error when the stream is exhausted.
func (r *Reader[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T
	for {
		r.mu.Lock()
		if r.head < len(r.items) {
			item := r.items[r.head]
			r.items[r.head] = zero
			r.head++
			if r.head == len(r.items) {
				r.items = r.items[:0]
				r.head = 0
			}
			r.mu.Unlock()
			return item, true, nil
		}
		if r.closed {
			r.mu.Unlock()
			return zero, false, nil
		}
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return zero, false, ctx.Err()
		case <-r.notify:
		}
	}
}

func (r *Reader[T]) push(item T) {
	r.mu.Lock()
	r.items = append(r.items, item)
	r.mu.Unlock()
	r.wake()
}

func (r *Reader[T]) close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.wake()
}

func (r *Reader[T]) wake() {
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Tee fans src out to two independent readers. Every item sent on src is
// delivered, in order, to both readers exactly once; closing src closes
// both. The pump goroutine exits when src is closed.
func Tee[T any](src <-chan T) (*Reader[T], *Reader[T]) {
	a := newReader[T]()
	b := newReader[T]()
	go func() {
		for item := range src {
			a.push(item)
			b.push(item)
		}
		a.close()
		b.close()
	}()
	return a, b
}
