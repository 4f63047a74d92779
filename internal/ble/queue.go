package ble

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// QueuePolicy selects how a Session handles payloads sent while a write is
// already in flight.
type QueuePolicy string

const (
	// QueueLatest keeps a single pending payload; a newer one replaces it.
	QueueLatest QueuePolicy = "latest"
	// QueueFIFO keeps pending payloads in order, dropping the oldest when full.
	QueueFIFO QueuePolicy = "fifo"
)

// ParseQueuePolicy parses "latest" or "fifo".
func ParseQueuePolicy(s string) (QueuePolicy, error) {
	switch p := QueuePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case QueueLatest, QueueFIFO:
		return p, nil
	}
	return "", fmt.Errorf("ble: unknown queue policy %q (want latest or fifo)", s)
}

// queuedWrite is a payload tagged with the link generation it was sent on.
type queuedWrite struct {
	gen  uint64
	data []byte
}

// writeQueue serializes writes for one Session: at most one payload is in
// flight, the rest wait here.
type writeQueue struct {
	policy QueuePolicy
	size   int

	mu       sync.Mutex
	pending  []queuedWrite
	inFlight bool
	waiters  []chan struct{}

	wake chan struct{}
}

func newWriteQueue(policy QueuePolicy, size int) *writeQueue {
	if policy == QueueLatest || size <= 0 {
		size = 1
	}
	return &writeQueue{
		policy: policy,
		size:   size,
		wake:   make(chan struct{}, 1),
	}
}

// push adds w and returns how many older payloads were discarded.
func (q *writeQueue) push(w queuedWrite) int {
	q.mu.Lock()
	dropped := 0
	for len(q.pending) >= q.size {
		q.pending = q.pending[1:]
		dropped++
	}
	q.pending = append(q.pending, w)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return dropped
}

// next pops the oldest pending payload and marks it in flight.
func (q *writeQueue) next() (queuedWrite, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return queuedWrite{}, false
	}
	p := q.pending[0]
	q.pending = q.pending[1:]
	q.inFlight = true
	return p, true
}

// done marks the in-flight write finished.
func (q *writeQueue) done() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.inFlight = false
	q.notifyIdleLocked()
}

// clear discards every pending payload and returns how many were dropped.
func (q *writeQueue) clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.pending)
	q.pending = nil
	q.notifyIdleLocked()
	return n
}

// len returns the number of payloads waiting (not counting the one in flight).
func (q *writeQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// wait blocks until nothing is pending or in flight.
func (q *writeQueue) wait(ctx context.Context) error {
	q.mu.Lock()
	if q.idleLocked() {
		q.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	q.waiters = append(q.waiters, ch)
	q.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *writeQueue) idleLocked() bool {
	return len(q.pending) == 0 && !q.inFlight
}

func (q *writeQueue) notifyIdleLocked() {
	if !q.idleLocked() {
		return
	}
	for _, ch := range q.waiters {
		close(ch)
	}
	q.waiters = nil
}
