package history

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/cardledger/client"
	"github.com/jmcleod/cardledger/internal/fakebackend"
)

type staticToken string

func (s staticToken) Token() (string, bool) { return string(s), s != "" }

func newBackedEngine(t *testing.T) (*Engine, *fakebackend.Server) {
	t.Helper()
	fb := fakebackend.New(t)
	fb.AddUser("alice", "pw", "user", true)
	fb.AddRecord("alice", "sbi-old.pdf", "SBI", 40*24*time.Hour)
	fb.AddRecord("alice", "hdfc-week.pdf", "HDFC", 3*24*time.Hour)
	fb.AddRecord("alice", "hdfc-today.pdf", "HDFC", time.Hour)
	fb.AddRecord("alice", "icici-today.pdf", "ICICI", 2*time.Hour)
	return NewEngine(client.New(fb.URL), staticToken(fb.Token("alice"))), fb
}

func TestMountLoadsIssuersAndRecords(t *testing.T) {
	e, fb := newBackedEngine(t)
	require.NoError(t, e.Mount(context.Background()))

	assert.Equal(t, []string{"HDFC", "ICICI", "SBI"}, e.Issuers())
	recs := e.Records()
	require.Len(t, recs, 4)
	assert.Equal(t, "hdfc-today.pdf", recs[0].Filename)
	assert.Len(t, fb.Requests("/files/history"), 2)

	v := e.View()
	assert.False(t, v.Loading)
	assert.Empty(t, v.Error)
	assert.Equal(t, "None", v.Summary)
}

func TestMountWithFiltersFirstFetch(t *testing.T) {
	e, fb := newBackedEngine(t)
	require.NoError(t, e.MountWith(context.Background(), client.Criteria{Issuer: "HDFC"}))

	assert.Equal(t, []string{"HDFC", "ICICI", "SBI"}, e.Issuers())
	assert.Len(t, e.Records(), 2)
	assert.Equal(t, "HDFC", e.Criteria().Issuer)

	reqs := fb.Requests("/files/history")
	require.Len(t, reqs, 2)
	filtered := 0
	for _, r := range reqs {
		if r.Query.Get("issuer") == "HDFC" {
			filtered++
		}
	}
	assert.Equal(t, 1, filtered)
}

func TestSetIssuerSendsOnlyIssuer(t *testing.T) {
	e, fb := newBackedEngine(t)
	ctx := context.Background()
	require.NoError(t, e.Mount(ctx))
	before := len(fb.Requests("/files/history"))

	require.NoError(t, e.SetIssuer(ctx, "HDFC"))

	reqs := fb.Requests("/files/history")
	require.Len(t, reqs, before+1, "exactly one re-fetch")
	last := reqs[len(reqs)-1]
	assert.Equal(t, "HDFC", last.Query.Get("issuer"))
	assert.False(t, last.Query.Has("period"))

	assert.Len(t, e.Records(), 2)
	assert.Equal(t, []string{"HDFC", "ICICI", "SBI"}, e.Issuers(), "options stay complete under a filter")
}

func TestFilterSequence(t *testing.T) {
	e, fb := newBackedEngine(t)
	ctx := context.Background()
	require.NoError(t, e.Mount(ctx))

	require.NoError(t, e.SetPeriod(ctx, client.PeriodWeek))
	assert.Len(t, e.Records(), 3)

	require.NoError(t, e.SetIssuer(ctx, "HDFC"))
	assert.Len(t, e.Records(), 2)
	assert.Equal(t, client.Criteria{Issuer: "HDFC", Period: client.PeriodWeek}, e.Criteria())
	assert.Equal(t, "Bank: HDFC, Period: Last Week", e.View().Summary)

	require.NoError(t, e.SetCriteria(ctx, client.Criteria{Issuer: "SBI", Period: client.PeriodYear}))
	assert.Len(t, e.Records(), 1)

	require.NoError(t, e.ClearFilters(ctx))
	assert.Len(t, e.Records(), 4)
	assert.True(t, e.Criteria().IsZero())

	reqs := fb.Requests("/files/history")
	last := reqs[len(reqs)-1]
	assert.Empty(t, last.Query)
	assert.Len(t, reqs, 2+4)
}

func TestFetchFailureKeepsRecords(t *testing.T) {
	e, fb := newBackedEngine(t)
	ctx := context.Background()
	require.NoError(t, e.Mount(ctx))

	fb.Fail("/files/history", 500, "database down")
	err := e.SetIssuer(ctx, "HDFC")
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "Failed to fetch history", err.Error())

	assert.Len(t, e.Records(), 4, "previous set is kept")
	assert.Equal(t, "HDFC", e.Criteria().Issuer, "criteria are kept for retry")
	assert.Equal(t, "Failed to fetch history", e.View().Error)

	require.NoError(t, e.SetIssuer(ctx, "HDFC"))
	assert.Empty(t, e.View().Error)
	assert.Len(t, e.Records(), 2)
}

type failingFetcher struct{ err error }

func (f failingFetcher) History(context.Context, string, client.Criteria) ([]client.HistoryRecord, error) {
	return nil, f.err
}

func TestMountFailureLeavesOptionsEmpty(t *testing.T) {
	e := NewEngine(failingFetcher{err: errors.New("connection refused")}, staticToken("t"))
	err := e.Mount(context.Background())
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Empty(t, e.Issuers())
	assert.Empty(t, e.Records())
	assert.Equal(t, "Failed to fetch history", e.View().Error)
}

func TestUnauthorizedCallsHandler(t *testing.T) {
	fb := fakebackend.New(t)
	var calls int
	var mu sync.Mutex
	e := NewEngine(client.New(fb.URL), staticToken("bogus"), WithUnauthorizedHandler(func(error) {
		mu.Lock()
		calls++
		mu.Unlock()
	}))
	err := e.Mount(context.Background())
	assert.ErrorIs(t, err, client.ErrUnauthorized)
	mu.Lock()
	assert.Equal(t, 1, calls)
	mu.Unlock()
}

// scriptedFetcher answers unfiltered calls immediately and lets tests
// control when filtered calls return.
type scriptedFetcher struct {
	mu      sync.Mutex
	waiters map[string]chan []client.HistoryRecord
	arrived chan string
}

func (f *scriptedFetcher) History(ctx context.Context, _ string, c client.Criteria) ([]client.HistoryRecord, error) {
	if c.IsZero() {
		return []client.HistoryRecord{{Filename: "a.pdf", Issuer: "HDFC"}}, nil
	}
	f.mu.Lock()
	ch := make(chan []client.HistoryRecord, 1)
	f.waiters[c.Issuer] = ch
	f.mu.Unlock()
	f.arrived <- c.Issuer
	return <-ch, nil
}

func (f *scriptedFetcher) answer(issuer string, recs []client.HistoryRecord) {
	f.mu.Lock()
	ch := f.waiters[issuer]
	f.mu.Unlock()
	ch <- recs
}

func TestSupersededResponseIsDropped(t *testing.T) {
	f := &scriptedFetcher{waiters: map[string]chan []client.HistoryRecord{}, arrived: make(chan string, 2)}
	e := NewEngine(f, staticToken("t"))
	ctx := context.Background()

	first := make(chan error, 1)
	go func() { first <- e.SetIssuer(ctx, "SBI") }()
	require.Equal(t, "SBI", <-f.arrived)

	second := make(chan error, 1)
	go func() { second <- e.SetIssuer(ctx, "HDFC") }()
	require.Equal(t, "HDFC", <-f.arrived)

	f.answer("HDFC", []client.HistoryRecord{{Filename: "h.pdf", Issuer: "HDFC"}})
	require.NoError(t, <-second)
	f.answer("SBI", []client.HistoryRecord{{Filename: "s.pdf", Issuer: "SBI"}})
	assert.ErrorIs(t, <-first, ErrSuperseded)

	recs := e.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, "h.pdf", recs[0].Filename)
}

func TestDetachDropsOutstandingResponse(t *testing.T) {
	f := &scriptedFetcher{waiters: map[string]chan []client.HistoryRecord{}, arrived: make(chan string, 1)}
	e := NewEngine(f, staticToken("t"))

	done := make(chan error, 1)
	go func() { done <- e.SetIssuer(context.Background(), "SBI") }()
	<-f.arrived
	e.Detach()
	f.answer("SBI", []client.HistoryRecord{{Filename: "s.pdf"}})

	assert.ErrorIs(t, <-done, ErrDetached)
	assert.Empty(t, e.Records())
	assert.ErrorIs(t, e.ClearFilters(context.Background()), ErrDetached)
	assert.ErrorIs(t, e.Mount(context.Background()), ErrDetached)
}

func TestSignedOut(t *testing.T) {
	e := NewEngine(&scriptedFetcher{}, staticToken(""))
	err := e.SetPeriod(context.Background(), client.PeriodDay)
	assert.ErrorIs(t, err, ErrSignedOut)
}
