package multi

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
	"github.com/JakeFAU/realtime-job-crawler/internal/sink/memory"
)

type failingSink struct {
	err error
}

func (f failingSink) Append(context.Context, crawler.EmittedRecord) error { return f.err }
func (f failingSink) Close(context.Context) error                         { return f.err }

func TestAppendFansOut(t *testing.T) {
	t.Parallel()

	a, b := memory.New(), memory.New()
	m := New(a, nil, b)
	assert.Equal(t, 2, m.Len())

	rec := crawler.EmittedRecord{CandidateRecord: crawler.CandidateRecord{ExternalID: "1"}}
	require.NoError(t, m.Append(context.Background(), rec))
	assert.Equal(t, 1, a.Len())
	assert.Equal(t, 1, b.Len())
}

func TestAppendStopsAtFirstFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	after := memory.New()
	m := New(failingSink{err: boom}, after)

	err := m.Append(context.Background(), crawler.EmittedRecord{CandidateRecord: crawler.CandidateRecord{ExternalID: "1"}})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, after.Len())
}

func TestCloseJoinsErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	ok := memory.New()
	m := New(failingSink{err: boom}, ok, failingSink{err: boom})

	err := m.Close(context.Background())
	require.ErrorIs(t, err, boom)
	require.Error(t, ok.Append(context.Background(), crawler.EmittedRecord{}))
}
