package stream

import "sync/atomic"

// Queue is a bounded single-producer single-consumer queue with a drop-oldest
// overflow policy: Push never blocks, and once the queue is full the oldest
// unread item is evicted to make room for the newest one.
type Queue[T any] struct {
	ch      chan T
	dropped atomic.Uint64
	onDrop  func()
}

// NewQueue builds a queue with the given capacity. onDrop, if non-nil, is
// invoked once per evicted item.
func NewQueue[T any](capacity int, onDrop func()) *Queue[T] {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Queue[T]{ch: make(chan T, capacity), onDrop: onDrop}
}

// Push enqueues v, evicting the oldest unread item when full. Only the single
// producer may call Push, and never after Close.
func (q *Queue[T]) Push(v T) {
	for {
		select {
		case q.ch <- v:
			return
		default:
		}
		select {
		case <-q.ch:
			q.dropped.Add(1)
			if q.onDrop != nil {
				q.onDrop()
			}
		default:
		}
	}
}

// Out exposes the consume side. Receives drain remaining items after Close,
// then the channel reports closed.
func (q *Queue[T]) Out() <-chan T { return q.ch }

// Close terminates the queue. Producer-side only; Push must not be called afterwards.
func (q *Queue[T]) Close() { close(q.ch) }

// Dropped reports how many items were evicted so far.
func (q *Queue[T]) Dropped() uint64 { return q.dropped.Load() }
