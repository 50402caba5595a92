// Package ingest orchestrates the ticket ingestion pipeline: field-map
// warmup, fetch, enrich, chunk, embed, upsert, audit.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime/debug"
	"sync"
	"time"

	"github.com/support-toolchain/ticketrag/pkg/chunk"
	"github.com/support-toolchain/ticketrag/pkg/config"
	"github.com/support-toolchain/ticketrag/pkg/embedding"
	"github.com/support-toolchain/ticketrag/pkg/enrich"
	"github.com/support-toolchain/ticketrag/pkg/vectorstore"
	"github.com/support-toolchain/ticketrag/pkg/zendesk"
)

// Orchestrator ties the pipeline components together and runs them as a
// state machine. One run at a time per process.
type Orchestrator struct {
	fields   FieldSource
	tickets  TicketSource
	enricher TicketEnricher
	embedder Embedder
	store    vectorstore.Store
	audit    AuditWriter
	cfg      *config.IngestionConfig
	logger   *slog.Logger

	mu      sync.Mutex
	phase   Phase
	running bool
}

// New creates an orchestrator.
func New(fields FieldSource, tickets TicketSource, enricher TicketEnricher,
	embedder Embedder, store vectorstore.Store, audit AuditWriter,
	cfg *config.IngestionConfig) *Orchestrator {
	return &Orchestrator{
		fields:   fields,
		tickets:  tickets,
		enricher: enricher,
		embedder: embedder,
		store:    store,
		audit:    audit,
		cfg:      cfg,
		phase:    PhaseIdle,
		logger:   slog.Default(),
	}
}

// Phase returns the current pipeline phase.
func (o *Orchestrator) Phase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

func (o *Orchestrator) setPhase(p Phase) {
	o.mu.Lock()
	o.phase = p
	o.mu.Unlock()
	o.logger.Info("Pipeline phase", "phase", p)
}

// Run ingests all tickets created in [start, end]. It returns a structured
// result in every terminal state; the error is non-nil only for fatal
// pipeline failures (a Failure audit record is attempted first).
func (o *Orchestrator) Run(ctx context.Context, start, end time.Time) (*Result, error) {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return nil, ErrRunInProgress
	}
	o.running = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
	}()

	started := time.Now()
	// Run-timestamp: minted once per run, embedded in every vector ID so a
	// replay with the same timestamp overwrites rather than duplicates.
	runTimestamp := started.UnixMilli()

	result := &Result{
		StartDate: start.Format("2006-01-02"),
		EndDate:   end.Format("2006-01-02"),
	}

	o.logger.Info("Ingestion run started",
		"start_date", result.StartDate, "end_date", result.EndDate,
		"run_timestamp", runTimestamp)

	// Phase 1: field-map warmup. The registry load is shared by every
	// enrichment; failing here fails fast before any ticket work.
	o.setPhase(PhaseFetchingFields)
	if _, err := o.fields.GetFields(ctx); err != nil {
		return o.fail(ctx, result, started, start, end, fmt.Errorf("field map warmup: %w", err))
	}

	// Phase 2: fetch.
	o.setPhase(PhaseFetchingTickets)
	tickets, err := o.tickets.SearchTickets(ctx, start, end)
	if err != nil {
		return o.fail(ctx, result, started, start, end, fmt.Errorf("fetch tickets: %w", err))
	}

	if len(tickets) == 0 {
		o.setPhase(PhaseAuditing)
		result.AuditRecordID = o.audit.RecordSuccess(context.WithoutCancel(ctx), start, end, 0)
		result.Status = StatusNoTickets
		result.ProcessingTime = elapsedSeconds(started)
		o.setPhase(PhaseDone)
		o.logger.Info("Ingestion run complete", "status", result.Status)
		return result, nil
	}

	// Phase 3: enrich. Per-ticket failures are absorbed; the run proceeds
	// with whatever enriched successfully.
	o.setPhase(PhaseEnriching)
	enriched := o.enrichAll(ctx, tickets)
	if ctx.Err() != nil {
		return o.fail(ctx, result, started, start, end, fmt.Errorf("run cancelled: %w", ctx.Err()))
	}
	result.TicketsProcessed = len(enriched)
	o.logger.Info("Enrichment complete",
		"enriched", len(enriched), "failed", len(tickets)-len(enriched))

	// Phase 4: chunk, in the fetcher's emission order.
	o.setPhase(PhaseChunking)
	vectors := make([]vectorstore.Vector, 0, len(enriched)*3)
	texts := make([]string, 0, len(enriched)*3)
	importedAt := time.Now().UTC().Format(time.RFC3339)
	for _, et := range enriched {
		for i, ck := range chunk.Build(et) {
			metadata := ck.Metadata.ToMap()
			metadata["text"] = ck.Text
			metadata["source"] = o.cfg.SourceTag
			metadata["imported_at"] = importedAt
			vectors = append(vectors, vectorstore.Vector{
				ID:       chunk.VectorID(o.cfg.SourceTag, et.ID, i, runTimestamp),
				Metadata: metadata,
			})
			texts = append(texts, ck.Text)
		}
	}
	result.TotalChunks = len(texts)
	o.logger.Info("Chunking complete", "chunks", len(texts))

	// Phase 5: embed. Order-preserving; a failure fails the run.
	o.setPhase(PhaseEmbedding)
	embeddings, err := o.embedder.EmbedBatch(ctx, texts, embedding.BatchOptions{
		BatchSize:       o.cfg.EmbedBatchSize,
		InterBatchDelay: o.cfg.EmbedInterBatchDelay,
		OnProgress: func(done, total int) {
			if done%25 == 0 || done == total {
				o.logger.Info("Embedding progress", "done", done, "total", total)
			}
		},
	})
	if err != nil {
		return o.fail(ctx, result, started, start, end, fmt.Errorf("embed chunks: %w", err))
	}
	for i := range vectors {
		vectors[i].Values = embeddings[i]
	}

	// Phase 6: upsert.
	o.setPhase(PhaseUpserting)
	if err := o.store.Upsert(ctx, vectors); err != nil {
		return o.fail(ctx, result, started, start, end, fmt.Errorf("upsert vectors: %w", err))
	}
	o.logger.Info("Upsert complete", "vectors", len(vectors))

	// Phase 7: audit.
	o.setPhase(PhaseAuditing)
	result.AuditRecordID = o.audit.RecordSuccess(context.WithoutCancel(ctx), start, end, len(enriched))

	result.Status = "completed"
	result.ProcessingTime = elapsedSeconds(started)
	o.setPhase(PhaseDone)
	o.logger.Info("Ingestion run complete",
		"tickets", result.TicketsProcessed,
		"chunks", result.TotalChunks,
		"seconds", result.ProcessingTime)
	return result, nil
}

// enrichAll processes tickets in batches of cfg.EnrichConcurrency concurrent
// enrichments with a pause between batches. Failed tickets are logged and
// dropped; output preserves the input (fetch emission) order.
func (o *Orchestrator) enrichAll(ctx context.Context, tickets []zendesk.Ticket) []*enrich.EnrichedTicket {
	results := make([]*enrich.EnrichedTicket, len(tickets))

	conc := o.cfg.EnrichConcurrency
	for batchStart := 0; batchStart < len(tickets); batchStart += conc {
		if batchStart > 0 {
			if !sleepCtx(ctx, o.cfg.EnrichBatchPause) {
				break
			}
		}
		batchEnd := batchStart + conc
		if batchEnd > len(tickets) {
			batchEnd = len(tickets)
		}

		var wg sync.WaitGroup
		for i := batchStart; i < batchEnd; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				et, err := o.enricher.Enrich(ctx, tickets[i])
				if err != nil {
					o.logger.Warn("Skipping ticket after enrichment failure",
						"ticket_id", tickets[i].ID, "error", err)
					return
				}
				results[i] = et
			}(i)
		}
		// The in-flight batch always finishes, even on cancellation.
		wg.Wait()

		if ctx.Err() != nil {
			break
		}
	}

	enriched := make([]*enrich.EnrichedTicket, 0, len(results))
	for _, et := range results {
		if et != nil {
			enriched = append(enriched, et)
		}
	}
	return enriched
}

// fail records the terminal failure state: best-effort Failure audit record,
// then the structured result plus the error itself.
func (o *Orchestrator) fail(ctx context.Context, result *Result, started time.Time, start, end time.Time, runErr error) (*Result, error) {
	o.setPhase(PhaseFailed)
	o.logger.Error("Ingestion run failed", "error", runErr)

	auditCtx := context.WithoutCancel(ctx)
	result.AuditRecordID = o.audit.RecordFailure(auditCtx, start, end, runErr, string(debug.Stack()))
	result.Status = "failed"
	result.ProcessingTime = elapsedSeconds(started)
	return result, runErr
}

// elapsedSeconds returns wall time since started, in seconds with two
// decimals, never zero.
func elapsedSeconds(started time.Time) float64 {
	secs := math.Round(time.Since(started).Seconds()*100) / 100
	if secs <= 0 {
		return 0.01
	}
	return secs
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
