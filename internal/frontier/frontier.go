// Package frontier holds the pending fetch tasks of a run and the ledger of emitted record ids.
package frontier

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
)

var (
	// ErrClosed is returned once the frontier stopped accepting or handing out work.
	ErrClosed = errors.New("frontier closed")
	// ErrDrained is returned when no task is pending and none is in flight.
	ErrDrained = errors.New("frontier drained")
)

// Stats is a point-in-time view of frontier activity.
type Stats struct {
	Enqueued       int
	Dispatched     int
	ListDispatched int
	Discarded      int
	Dropped        int
	Pending        int
	InFlight       int
}

// Frontier is a FIFO of fetch tasks shared by every worker of a run.
// Fresh LIST tasks count against the page ceiling when dispatched; retries do not.
type Frontier struct {
	mu          sync.Mutex
	pending     []crawler.FetchTask
	pageCeiling int
	inFlight    int
	closed      bool
	drained     bool
	changed     chan struct{}
	stats       Stats
}

// New constructs a frontier. A pageCeiling <= 0 disables the ceiling.
func New(pageCeiling int) *Frontier {
	return &Frontier{
		pageCeiling: pageCeiling,
		changed:     make(chan struct{}),
	}
}

// Enqueue appends a task, failing once the frontier is closed.
func (f *Frontier) Enqueue(task crawler.FetchTask) error {
	if task.URL == "" {
		return errors.New("enqueue: task url is empty")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return fmt.Errorf("enqueue %s: %w", task.URL, ErrClosed)
	}
	f.pending = append(f.pending, task)
	f.stats.Enqueued++
	f.broadcastLocked()
	return nil
}

// Dequeue blocks until a task is available, the frontier drains or closes, or ctx ends.
// Every task returned must be acknowledged with Done.
func (f *Frontier) Dequeue(ctx context.Context) (crawler.FetchTask, error) {
	for {
		if err := ctx.Err(); err != nil {
			return crawler.FetchTask{}, fmt.Errorf("dequeue canceled: %w", err)
		}
		f.mu.Lock()
		if f.closed {
			err := ErrClosed
			if f.drained {
				err = ErrDrained
			}
			f.mu.Unlock()
			return crawler.FetchTask{}, err
		}
		if task, ok := f.popLocked(); ok {
			f.mu.Unlock()
			return task, nil
		}
		if f.inFlight == 0 {
			f.closed = true
			f.drained = true
			f.broadcastLocked()
			f.mu.Unlock()
			return crawler.FetchTask{}, ErrDrained
		}
		wait := f.changed
		f.mu.Unlock()

		select {
		case <-ctx.Done():
			return crawler.FetchTask{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
		case <-wait:
		}
	}
}

func (f *Frontier) popLocked() (crawler.FetchTask, bool) {
	for len(f.pending) > 0 {
		task := f.pending[0]
		f.pending[0] = crawler.FetchTask{}
		f.pending = f.pending[1:]
		if task.IsList() && task.Attempt == 0 {
			if f.pageCeiling > 0 && f.stats.ListDispatched >= f.pageCeiling {
				f.stats.Discarded++
				continue
			}
			f.stats.ListDispatched++
		}
		f.inFlight++
		f.stats.Dispatched++
		return task, true
	}
	return crawler.FetchTask{}, false
}

// Done acknowledges a dequeued task. Follow-up and retry tasks must be enqueued before calling it.
func (f *Frontier) Done() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inFlight > 0 {
		f.inFlight--
	}
	f.broadcastLocked()
}

// Close rejects further enqueues, drops pending tasks and wakes all waiting workers.
func (f *Frontier) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	f.stats.Dropped += len(f.pending)
	f.pending = nil
	f.broadcastLocked()
}

// CeilingReached reports whether the page ceiling has been consumed.
func (f *Frontier) CeilingReached() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pageCeiling > 0 && f.stats.ListDispatched >= f.pageCeiling
}

// Stats returns a snapshot of the counters.
func (f *Frontier) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.stats
	s.Pending = len(f.pending)
	s.InFlight = f.inFlight
	return s
}

func (f *Frontier) broadcastLocked() {
	close(f.changed)
	f.changed = make(chan struct{})
}
