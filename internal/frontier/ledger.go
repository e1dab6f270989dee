package frontier

import (
	"sync"

	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
)

// EmitResult is the outcome of a TryEmit call.
type EmitResult int

// Emit outcomes.
const (
	EmitAccepted EmitResult = iota
	EmitDuplicate
	EmitQuotaReached
)

func (r EmitResult) String() string {
	switch r {
	case EmitAccepted:
		return "accepted"
	case EmitDuplicate:
		return "duplicate"
	case EmitQuotaReached:
		return "quota-reached"
	default:
		return "unknown"
	}
}

// LedgerStats summarizes the ledger.
type LedgerStats struct {
	Emitted   int
	Pending   int
	Processed int
	Quota     int
}

// Ledger remembers which external ids were processed and emitted during a run.
// An accepted emission is pending until Commit or Rollback; only committed ids
// count as emitted, while pending ones still hold a quota slot.
type Ledger struct {
	mu        sync.Mutex
	settled   *sync.Cond
	quota     int
	emitted   map[string]struct{}
	pending   map[string]struct{}
	processed map[string]struct{}
}

// NewLedger builds a ledger enforcing quota; crawler.Unlimited disables the cap.
func NewLedger(quota int) *Ledger {
	l := &Ledger{
		quota:     quota,
		emitted:   make(map[string]struct{}),
		pending:   make(map[string]struct{}),
		processed: make(map[string]struct{}),
	}
	l.settled = sync.NewCond(&l.mu)
	return l
}

// Claim marks id as processed and returns true for the first caller only.
func (l *Ledger) Claim(id string) bool {
	if id == "" {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.processed[id]; ok {
		return false
	}
	l.processed[id] = struct{}{}
	return true
}

// Release undoes a Claim for an id that was never handed to TryEmit.
func (l *Ledger) Release(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.emitted[id]; ok {
		return
	}
	if _, ok := l.pending[id]; ok {
		return
	}
	delete(l.processed, id)
}

// HasEmitted reports whether a record with id was emitted or is being emitted.
func (l *Ledger) HasEmitted(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.emitted[id]
	if !ok {
		_, ok = l.pending[id]
	}
	return ok
}

// TryEmit checks and reserves id in one critical section, enforcing the quota.
// When the free slots are all held by pending emissions it waits for one of
// them to settle, so a failed write never turns away a valid record.
func (l *Ledger) TryEmit(id string) EmitResult {
	l.mu.Lock()
	defer l.mu.Unlock()
	for {
		if l.knownLocked(id) {
			return EmitDuplicate
		}
		if l.quotaReachedLocked() {
			return EmitQuotaReached
		}
		if l.quota == crawler.Unlimited || len(l.emitted)+len(l.pending) < l.quota {
			break
		}
		l.settled.Wait()
	}
	l.pending[id] = struct{}{}
	l.processed[id] = struct{}{}
	return EmitAccepted
}

// Commit turns an accepted emission into a counted one after the sink write succeeded.
func (l *Ledger) Commit(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.pending[id]; !ok {
		return
	}
	delete(l.pending, id)
	l.emitted[id] = struct{}{}
	l.settled.Broadcast()
}

// Rollback forgets an accepted emission whose sink write failed. The id may be
// claimed and emitted again later in the run.
func (l *Ledger) Rollback(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.pending[id]; !ok {
		return
	}
	delete(l.pending, id)
	delete(l.processed, id)
	l.settled.Broadcast()
}

func (l *Ledger) knownLocked(id string) bool {
	if _, ok := l.emitted[id]; ok {
		return true
	}
	_, ok := l.pending[id]
	return ok
}

// QuotaReached reports whether the committed emissions filled the quota.
func (l *Ledger) QuotaReached() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.quotaReachedLocked()
}

func (l *Ledger) quotaReachedLocked() bool {
	return l.quota != crawler.Unlimited && len(l.emitted) >= l.quota
}

// Emitted returns the number of committed records.
func (l *Ledger) Emitted() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.emitted)
}

// Reserved returns committed plus pending emissions.
func (l *Ledger) Reserved() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.emitted) + len(l.pending)
}

// Stats returns a snapshot of the ledger.
func (l *Ledger) Stats() LedgerStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return LedgerStats{
		Emitted:   len(l.emitted),
		Pending:   len(l.pending),
		Processed: len(l.processed),
		Quota:     l.quota,
	}
}
