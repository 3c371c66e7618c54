// Package ingress is the command-ingress side of spec.md §6: a
// multi-producer, single-consumer queue of decoded commands that
// network readers (external to the core) push into, and that the
// scheduler's Pre phase drains up to a configured maximum per tick.
package ingress

import "github.com/edwinsyarief/rgbworld/internal/scheduler"

// Queue wraps a buffered channel of scheduler.Command. Any number of
// goroutines may Push concurrently; the scheduler is the sole
// consumer, reading via Chan().
type Queue struct {
	ch chan scheduler.Command
}

// NewQueue creates a queue with room for capacity in-flight commands
// before Push starts blocking (or TryPush starts failing).
func NewQueue(capacity int) *Queue {
	return &Queue{ch: make(chan scheduler.Command, capacity)}
}

// Push enqueues cmd, blocking if the queue is full. Network readers
// that cannot tolerate blocking should use TryPush and apply their own
// drop/backpressure policy.
func (q *Queue) Push(cmd scheduler.Command) {
	q.ch <- cmd
}

// TryPush enqueues cmd without blocking, returning false if the queue
// is momentarily full.
func (q *Queue) TryPush(cmd scheduler.Command) bool {
	select {
	case q.ch <- cmd:
		return true
	default:
		return false
	}
}

// Chan exposes the receive side, suitable for scheduler.Scheduler.Commands.
func (q *Queue) Chan() <-chan scheduler.Command {
	return q.ch
}

// Len reports the number of commands currently buffered.
func (q *Queue) Len() int { return len(q.ch) }

// Cap reports the queue's configured capacity.
func (q *Queue) Cap() int { return cap(q.ch) }
