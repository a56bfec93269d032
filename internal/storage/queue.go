package storage

import (
	"context"
	"sync"
)

// KeyQueue runs operations one at a time per key, in the order Do was called.
// Operations on different keys never wait for each other.
type KeyQueue struct {
	mu      sync.Mutex
	entries map[string]*queueEntry
}

type queueEntry struct {
	// tail is closed when the most recently issued operation finishes.
	tail    chan struct{}
	pending int
}

func NewKeyQueue() *KeyQueue {
	return &KeyQueue{entries: make(map[string]*queueEntry)}
}

// Do waits for every operation previously issued for key, then runs fn.
// If ctx is cancelled while waiting, Do returns ctx.Err() without running fn;
// its place in the queue is still released in order, after its predecessor.
func (q *KeyQueue) Do(ctx context.Context, key string, fn func() error) error {
	done := make(chan struct{})

	q.mu.Lock()
	e, ok := q.entries[key]
	if !ok {
		e = &queueEntry{}
		q.entries[key] = e
	}
	prev := e.tail
	e.tail = done
	e.pending++
	q.mu.Unlock()

	release := func() {
		close(done)
		q.mu.Lock()
		e.pending--
		if e.pending == 0 {
			delete(q.entries, key)
		}
		q.mu.Unlock()
	}

	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			go func() {
				<-prev
				release()
			}()
			return ctx.Err()
		}
	}

	defer release()
	return fn()
}

// Len returns the number of keys with queued or running operations.
func (q *KeyQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Pending returns the number of queued or running operations for key.
func (q *KeyQueue) Pending(key string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if e, ok := q.entries[key]; ok {
		return e.pending
	}
	return 0
}
