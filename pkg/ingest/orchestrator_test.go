package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/support-toolchain/ticketrag/pkg/config"
	"github.com/support-toolchain/ticketrag/pkg/embedding"
	"github.com/support-toolchain/ticketrag/pkg/enrich"
	"github.com/support-toolchain/ticketrag/pkg/vectorstore"
	"github.com/support-toolchain/ticketrag/pkg/zendesk"
)

type fakeFields struct {
	err error
}

func (f *fakeFields) GetFields(context.Context) (map[int64]zendesk.TicketField, error) {
	if f.err != nil {
		return nil, f.err
	}
	return map[int64]zendesk.TicketField{}, nil
}

type fakeTickets struct {
	tickets []zendesk.Ticket
	err     error
	block   chan struct{} // when set, SearchTickets waits until closed
}

func (f *fakeTickets) SearchTickets(ctx context.Context, _, _ time.Time) ([]zendesk.Ticket, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.tickets, nil
}

type fakeEnricher struct {
	mu      sync.Mutex
	failIDs map[int64]bool
	calls   []int64
}

func (f *fakeEnricher) Enrich(_ context.Context, t zendesk.Ticket) (*enrich.EnrichedTicket, error) {
	f.mu.Lock()
	f.calls = append(f.calls, t.ID)
	f.mu.Unlock()
	if f.failIDs[t.ID] {
		return nil, fmt.Errorf("comments unavailable for %d", t.ID)
	}
	return &enrich.EnrichedTicket{
		ID:      t.ID,
		Subject: t.Subject,
		Status:  t.Status,
	}, nil
}

type fakeEmbedder struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string, opts embedding.BatchOptions) ([][]float32, error) {
	f.mu.Lock()
	f.texts = append(f.texts, texts...)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0, 0, 0}
		if opts.OnProgress != nil {
			opts.OnProgress(i+1, len(texts))
		}
	}
	return out, nil
}

type fakeStore struct {
	vectorstore.Store
	mu       sync.Mutex
	upserted []vectorstore.Vector
	err      error
}

func (f *fakeStore) Upsert(_ context.Context, vectors []vectorstore.Vector) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	f.upserted = append(f.upserted, vectors...)
	f.mu.Unlock()
	return nil
}

type auditCall struct {
	kind    string
	count   int
	message string
}

type fakeAudit struct {
	mu    sync.Mutex
	calls []auditCall
}

func (f *fakeAudit) RecordSuccess(_ context.Context, _, _ time.Time, ticketCount int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, auditCall{kind: "success", count: ticketCount})
	return "audit-1"
}

func (f *fakeAudit) RecordFailure(_ context.Context, _, _ time.Time, runErr error, _ string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, auditCall{kind: "failure", message: runErr.Error()})
	return "audit-1"
}

func testIngestionConfig() *config.IngestionConfig {
	return &config.IngestionConfig{
		EnrichConcurrency:    2,
		EnrichBatchPause:     time.Millisecond,
		EmbedBatchSize:       100,
		EmbedInterBatchDelay: time.Millisecond,
		UpsertBatchSize:      100,
		SourceTag:            "zendesk",
	}
}

type fixture struct {
	fields   *fakeFields
	tickets  *fakeTickets
	enricher *fakeEnricher
	embedder *fakeEmbedder
	store    *fakeStore
	audit    *fakeAudit
	orch     *Orchestrator
}

func newFixture(tickets []zendesk.Ticket) *fixture {
	f := &fixture{
		fields:   &fakeFields{},
		tickets:  &fakeTickets{tickets: tickets},
		enricher: &fakeEnricher{},
		embedder: &fakeEmbedder{},
		store:    &fakeStore{},
		audit:    &fakeAudit{},
	}
	f.orch = New(f.fields, f.tickets, f.enricher, f.embedder, f.store, f.audit, testIngestionConfig())
	return f
}

func dateRange() (time.Time, time.Time) {
	return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
}

func TestRunHappyPath(t *testing.T) {
	f := newFixture([]zendesk.Ticket{
		{ID: 1, Subject: "a", Status: "solved"},
		{ID: 2, Subject: "b", Status: "open"},
		{ID: 3, Subject: "c", Status: "solved"},
	})

	start, end := dateRange()
	result, err := f.orch.Run(context.Background(), start, end)
	require.NoError(t, err)

	assert.Equal(t, "completed", result.Status)
	assert.Equal(t, 3, result.TicketsProcessed)
	assert.Equal(t, 3, result.TotalChunks, "each minimal ticket yields one overview chunk")
	assert.Equal(t, "audit-1", result.AuditRecordID)
	assert.Equal(t, "2026-01-01", result.StartDate)
	assert.Equal(t, "2026-01-31", result.EndDate)
	assert.Greater(t, result.ProcessingTime, 0.0)

	assert.Equal(t, PhaseDone, f.orch.Phase())
	assert.Len(t, f.store.upserted, 3)
	require.Len(t, f.audit.calls, 1)
	assert.Equal(t, "success", f.audit.calls[0].kind)
	assert.Equal(t, 3, f.audit.calls[0].count)
}

func TestRunVectorsCarryIDsAndProvenance(t *testing.T) {
	f := newFixture([]zendesk.Ticket{{ID: 42, Subject: "s"}})

	start, end := dateRange()
	_, err := f.orch.Run(context.Background(), start, end)
	require.NoError(t, err)

	require.Len(t, f.store.upserted, 1)
	vec := f.store.upserted[0]

	assert.True(t, strings.HasPrefix(vec.ID, "zendesk-ticket-42-chunk-0-"),
		"vector ID embeds source, ticket, chunk index, and run timestamp")
	assert.Equal(t, []float32{1, 0, 0, 0}, vec.Values)
	assert.Equal(t, "zendesk", vec.Metadata["source"])
	assert.NotEmpty(t, vec.Metadata["text"])
	assert.NotEmpty(t, vec.Metadata["imported_at"])
	assert.Equal(t, "overview", vec.Metadata["type"])
}

func TestRunNoTickets(t *testing.T) {
	f := newFixture(nil)

	start, end := dateRange()
	result, err := f.orch.Run(context.Background(), start, end)
	require.NoError(t, err)

	assert.Equal(t, StatusNoTickets, result.Status)
	assert.Zero(t, result.TicketsProcessed)
	assert.Zero(t, result.TotalChunks)
	assert.Equal(t, PhaseDone, f.orch.Phase())

	// A success record is still written, with a zero count.
	require.Len(t, f.audit.calls, 1)
	assert.Equal(t, "success", f.audit.calls[0].kind)
	assert.Zero(t, f.audit.calls[0].count)

	assert.Empty(t, f.embedder.texts)
	assert.Empty(t, f.store.upserted)
}

func TestRunFetchFailureRecordsFailureAudit(t *testing.T) {
	f := newFixture(nil)
	f.tickets.err = errors.New("search quota exhausted")

	start, end := dateRange()
	result, err := f.orch.Run(context.Background(), start, end)
	require.Error(t, err)

	assert.Equal(t, "failed", result.Status)
	assert.Equal(t, PhaseFailed, f.orch.Phase())
	require.Len(t, f.audit.calls, 1)
	assert.Equal(t, "failure", f.audit.calls[0].kind)
	assert.Contains(t, f.audit.calls[0].message, "search quota exhausted")
}

func TestRunFieldWarmupFailureIsFatal(t *testing.T) {
	f := newFixture([]zendesk.Ticket{{ID: 1}})
	f.fields.err = errors.New("schema endpoint down")

	start, end := dateRange()
	_, err := f.orch.Run(context.Background(), start, end)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "field map warmup")
	assert.Empty(t, f.enricher.calls, "no ticket work happens after warmup failure")
}

func TestRunSkipsTicketsThatFailEnrichment(t *testing.T) {
	f := newFixture([]zendesk.Ticket{{ID: 1}, {ID: 2}, {ID: 3}, {ID: 4}})
	f.enricher.failIDs = map[int64]bool{2: true, 4: true}

	start, end := dateRange()
	result, err := f.orch.Run(context.Background(), start, end)
	require.NoError(t, err, "per-ticket enrichment failures do not fail the run")

	assert.Equal(t, 2, result.TicketsProcessed)
	assert.Equal(t, "completed", result.Status)
	assert.Len(t, f.enricher.calls, 4)
	assert.Len(t, f.store.upserted, 2)
}

func TestRunEmbedFailureRecordsFailureAudit(t *testing.T) {
	f := newFixture([]zendesk.Ticket{{ID: 1}})
	f.embedder.err = errors.New("provider 500s exhausted retries")

	start, end := dateRange()
	result, err := f.orch.Run(context.Background(), start, end)
	require.Error(t, err)

	assert.Equal(t, "failed", result.Status)
	assert.Empty(t, f.store.upserted)
	require.Len(t, f.audit.calls, 1)
	assert.Equal(t, "failure", f.audit.calls[0].kind)
}

func TestRunUpsertFailureRecordsFailureAudit(t *testing.T) {
	f := newFixture([]zendesk.Ticket{{ID: 1}})
	f.store.err = errors.New("index unavailable")

	start, end := dateRange()
	result, err := f.orch.Run(context.Background(), start, end)
	require.Error(t, err)
	assert.Equal(t, "failed", result.Status)
	assert.Contains(t, err.Error(), "upsert vectors")
}

func TestRunRejectsConcurrentRuns(t *testing.T) {
	f := newFixture(nil)
	f.tickets.block = make(chan struct{})

	start, end := dateRange()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = f.orch.Run(context.Background(), start, end)
	}()

	// Wait until the first run is inside the fetch phase.
	require.Eventually(t, func() bool {
		return f.orch.Phase() == PhaseFetchingTickets
	}, time.Second, time.Millisecond)

	_, err := f.orch.Run(context.Background(), start, end)
	assert.ErrorIs(t, err, ErrRunInProgress)

	close(f.tickets.block)
	<-done

	// A finished run releases the guard.
	_, err = f.orch.Run(context.Background(), start, end)
	assert.NoError(t, err)
}

func TestRunCancellationFailsTheRun(t *testing.T) {
	f := newFixture(nil)
	f.tickets.block = make(chan struct{})
	defer close(f.tickets.block)

	ctx, cancel := context.WithCancel(context.Background())
	start, end := dateRange()

	resultCh := make(chan error, 1)
	go func() {
		_, err := f.orch.Run(ctx, start, end)
		resultCh <- err
	}()

	require.Eventually(t, func() bool {
		return f.orch.Phase() == PhaseFetchingTickets
	}, time.Second, time.Millisecond)
	cancel()

	err := <-resultCh
	require.Error(t, err)
	assert.Equal(t, PhaseFailed, f.orch.Phase())
}

func TestRunOrderingMatchesFetchEmission(t *testing.T) {
	tickets := make([]zendesk.Ticket, 7)
	for i := range tickets {
		tickets[i] = zendesk.Ticket{ID: int64(i + 1), Subject: fmt.Sprintf("t%d", i+1)}
	}
	f := newFixture(tickets)

	start, end := dateRange()
	_, err := f.orch.Run(context.Background(), start, end)
	require.NoError(t, err)

	require.Len(t, f.store.upserted, 7)
	for i, vec := range f.store.upserted {
		assert.True(t, strings.HasPrefix(vec.ID, fmt.Sprintf("zendesk-ticket-%d-", i+1)),
			"vectors are emitted in fetch order despite concurrent enrichment")
	}
}
