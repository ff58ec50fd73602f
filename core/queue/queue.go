// Package queue serializes link submissions into a single in-order
// consumer, so a burst of pasted links can never race the ingestion
// pipeline or blur per-item error attribution.
package queue

import (
	"context"
	"sync"

	"clipfm/core/ingest"
	"clipfm/logger"
)

// SubmitFunc ingests one link and reports its outcome.
type SubmitFunc func(ctx context.Context, url string) (*ingest.Result, error)

// Notification reports the outcome of one queued submission.
type Notification struct {
	URL    string
	Result *ingest.Result
	Err    error
}

// NotifyFunc receives per-item notifications as the queue drains.
type NotifyFunc func(Notification)

// SubmissionQueue is an order-preserving queue of pending link
// submissions with at most one active consumer. Enqueueing while a drain
// is running never spawns a second consumer; the running one picks the
// item up. One item's failure never aborts the drain.
type SubmissionQueue struct {
	ctx    context.Context
	submit SubmitFunc
	notify NotifyFunc

	mu       sync.Mutex
	items    []string
	draining bool

	wg sync.WaitGroup
}

// New creates a SubmissionQueue. ctx bounds all submissions started by
// this queue. notify may be nil.
func New(ctx context.Context, submit SubmitFunc, notify NotifyFunc) *SubmissionQueue {
	return &SubmissionQueue{ctx: ctx, submit: submit, notify: notify}
}

// Enqueue appends links and starts a drain if none is running. It returns
// the pending count after the append.
func (q *SubmissionQueue) Enqueue(urls ...string) int {
	q.mu.Lock()
	q.items = append(q.items, urls...)
	pending := len(q.items)
	if !q.draining && pending > 0 {
		q.draining = true
		q.wg.Add(1)
		go q.drain()
	}
	q.mu.Unlock()
	return pending
}

// Pending returns the number of links waiting to be submitted.
func (q *SubmissionQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// IsDraining reports whether a consumer is currently running.
func (q *SubmissionQueue) IsDraining() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.draining
}

// Wait blocks until the current drain, if any, has finished.
func (q *SubmissionQueue) Wait() {
	q.wg.Wait()
}

// drain pops and submits items in order until the queue is empty, then
// goes idle. The guard flag is cleared under the same lock that observes
// emptiness, so no item can be appended unseen between loop exit and idle.
func (q *SubmissionQueue) drain() {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		if len(q.items) == 0 {
			q.draining = false
			q.mu.Unlock()
			return
		}
		url := q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()

		result, err := q.submit(q.ctx, url)
		if err != nil {
			logger.Warn("queued submission failed",
				logger.String("url", url),
				logger.ErrorField(err),
			)
		}
		if q.notify != nil {
			q.notify(Notification{URL: url, Result: result, Err: err})
		}
	}
}
