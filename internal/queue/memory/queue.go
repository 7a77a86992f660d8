// Package memory provides queue implementations for local development.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/leadharvest/leadscraper/internal/scrape"
)

// Queue is a bounded in-memory work queue with context-aware operations.
// Nack re-submits the item with Attempt incremented, which models the
// at-least-once redelivery of the managed queue.
type Queue struct {
	ch      chan scrape.WorkItem
	closeMu sync.Mutex
	closed  bool
}

// NewQueue constructs a queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{
		ch: make(chan scrape.WorkItem, capacity),
	}
}

// Submit pushes a work item into the queue or returns if the context ends.
func (q *Queue) Submit(ctx context.Context, item scrape.WorkItem) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("submit canceled: %w", ctx.Err())
	case q.ch <- item:
		return nil
	}
}

// Receive pops the next delivery, respecting context cancellation.
func (q *Queue) Receive(ctx context.Context) (scrape.Delivery, error) {
	select {
	case <-ctx.Done():
		return scrape.Delivery{}, fmt.Errorf("receive canceled: %w", ctx.Err())
	case item, ok := <-q.ch:
		if !ok {
			return scrape.Delivery{}, errors.New("queue closed")
		}
		return scrape.Delivery{
			Item: item,
			Ack:  func() {},
			Nack: func() { q.redeliver(item) },
		}, nil
	}
}

// redeliver re-submits a nacked item with its attempt bumped. A full or
// closed queue during shutdown drops the item; the stale-processing sweep
// picks it up later.
func (q *Queue) redeliver(item scrape.WorkItem) {
	item.Attempt++
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	select {
	case q.ch <- item:
	default:
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
