package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrQueueFull is returned when the bounded job queue cannot accept more
// work without blocking.
var ErrQueueFull = errors.New("job queue full")

// Queue is a bounded in-memory queue of job IDs with context-aware
// operations.
type Queue struct {
	ch      chan string
	closeMu sync.Mutex
	closed  bool
}

// NewQueue constructs a queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{ch: make(chan string, capacity)}
}

// Enqueue pushes a job ID without blocking; a full queue is rejected so the
// control API can surface backpressure instead of hanging the request.
func (q *Queue) Enqueue(jobID string) error {
	select {
	case q.ch <- jobID:
		return nil
	default:
		return ErrQueueFull
	}
}

// Dequeue pops the next job ID, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case jobID, ok := <-q.ch:
		if !ok {
			return "", errors.New("queue closed")
		}
		return jobID, nil
	}
}

// Len reports the pending depth.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Drain discards all pending job IDs and returns them, for hard reset.
func (q *Queue) Drain() []string {
	var drained []string
	for {
		select {
		case jobID := <-q.ch:
			drained = append(drained, jobID)
		default:
			return drained
		}
	}
}

// Close closes the underlying channel for shutdown.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
