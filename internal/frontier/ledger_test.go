package frontier

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
)

func TestLedgerTryEmit(t *testing.T) {
	t.Parallel()

	l := NewLedger(2)
	assert.Equal(t, EmitAccepted, l.TryEmit("a"))
	assert.Equal(t, EmitDuplicate, l.TryEmit("a"), "pending ids are duplicates")
	l.Commit("a")
	assert.Equal(t, EmitDuplicate, l.TryEmit("a"))
	assert.Equal(t, EmitAccepted, l.TryEmit("b"))
	assert.False(t, l.QuotaReached(), "pending emissions do not fill the quota")
	assert.Equal(t, LedgerStats{Emitted: 1, Pending: 1, Processed: 2, Quota: 2}, l.Stats())
	assert.Equal(t, 2, l.Reserved())

	l.Commit("b")
	assert.Equal(t, EmitQuotaReached, l.TryEmit("c"))
	assert.True(t, l.QuotaReached())
	assert.True(t, l.HasEmitted("a"))
	assert.False(t, l.HasEmitted("c"))
	assert.Equal(t, LedgerStats{Emitted: 2, Processed: 2, Quota: 2}, l.Stats())
}

func TestLedgerRollbackFreesQuota(t *testing.T) {
	t.Parallel()

	l := NewLedger(1)
	require.True(t, l.Claim("a"))
	require.Equal(t, EmitAccepted, l.TryEmit("a"))
	l.Rollback("a")
	assert.False(t, l.QuotaReached())
	assert.False(t, l.HasEmitted("a"))
	assert.True(t, l.Claim("a"), "a rolled-back id can be claimed again")
	assert.Equal(t, EmitAccepted, l.TryEmit("b"))
}

func TestLedgerTryEmitWaitsForPendingWrite(t *testing.T) {
	t.Parallel()

	l := NewLedger(1)
	require.Equal(t, EmitAccepted, l.TryEmit("a"))

	result := make(chan EmitResult, 1)
	go func() { result <- l.TryEmit("b") }()

	select {
	case r := <-result:
		t.Fatalf("TryEmit returned %s while the only slot was pending", r)
	case <-time.After(50 * time.Millisecond):
	}

	l.Rollback("a")
	select {
	case r := <-result:
		assert.Equal(t, EmitAccepted, r)
	case <-time.After(time.Second):
		t.Fatal("TryEmit did not wake after rollback")
	}
	l.Commit("b")
	assert.True(t, l.QuotaReached())
	assert.Equal(t, EmitQuotaReached, l.TryEmit("c"))
}

func TestLedgerTryEmitAfterPendingCommit(t *testing.T) {
	t.Parallel()

	l := NewLedger(1)
	require.Equal(t, EmitAccepted, l.TryEmit("a"))

	result := make(chan EmitResult, 1)
	go func() { result <- l.TryEmit("b") }()
	time.Sleep(20 * time.Millisecond)
	l.Commit("a")

	select {
	case r := <-result:
		assert.Equal(t, EmitQuotaReached, r)
	case <-time.After(time.Second):
		t.Fatal("TryEmit did not wake after commit")
	}
}

func TestLedgerRelease(t *testing.T) {
	t.Parallel()

	l := NewLedger(crawler.Unlimited)
	require.True(t, l.Claim("x"))
	l.Release("x")
	assert.True(t, l.Claim("x"))

	require.Equal(t, EmitAccepted, l.TryEmit("x"))
	l.Release("x")
	assert.False(t, l.Claim("x"), "pending ids keep their claim")
}

func TestLedgerClaim(t *testing.T) {
	t.Parallel()

	l := NewLedger(crawler.Unlimited)
	assert.True(t, l.Claim("x"))
	assert.False(t, l.Claim("x"))
	assert.False(t, l.Claim(""))
	assert.Equal(t, 1, l.Stats().Processed)
}

func TestLedgerUnlimited(t *testing.T) {
	t.Parallel()

	l := NewLedger(crawler.Unlimited)
	for i := 0; i < 500; i++ {
		id := fmt.Sprintf("id-%d", i)
		require.Equal(t, EmitAccepted, l.TryEmit(id))
		l.Commit(id)
	}
	assert.False(t, l.QuotaReached())
}

func TestLedgerConcurrentEmissionNeverExceedsQuota(t *testing.T) {
	t.Parallel()

	const quota = 7
	l := NewLedger(quota)
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted = map[string]int{}
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				id := fmt.Sprintf("id-%d", i%10)
				if l.TryEmit(id) == EmitAccepted {
					l.Commit(id)
					mu.Lock()
					accepted[id]++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	total := 0
	for id, n := range accepted {
		assert.Equal(t, 1, n, "id %s emitted more than once", id)
		total += n
	}
	assert.Equal(t, quota, total)
}

func TestEmitResultString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "duplicate", EmitDuplicate.String())
	assert.Equal(t, "unknown", EmitResult(42).String())
}
