package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/support-toolchain/ticketrag/pkg/embedding"
	"github.com/support-toolchain/ticketrag/pkg/enrich"
	"github.com/support-toolchain/ticketrag/pkg/zendesk"
)

// ErrRunInProgress is returned when a run is requested while another is
// active. Runs are serialized per process.
var ErrRunInProgress = errors.New("an ingestion run is already in progress")

// Phase is the orchestrator's position in the pipeline state machine.
type Phase string

const (
	PhaseIdle            Phase = "idle"
	PhaseFetchingFields  Phase = "fetching_fields"
	PhaseFetchingTickets Phase = "fetching_tickets"
	PhaseEnriching       Phase = "enriching"
	PhaseChunking        Phase = "chunking"
	PhaseEmbedding       Phase = "embedding"
	PhaseUpserting       Phase = "upserting"
	PhaseAuditing        Phase = "auditing"
	PhaseDone            Phase = "done"
	PhaseFailed          Phase = "failed"
)

// Result is the structured payload returned in every terminal state.
type Result struct {
	Status           string  `json:"status"`
	TicketsProcessed int     `json:"tickets_processed"`
	TotalChunks      int     `json:"total_chunks"`
	ProcessingTime   float64 `json:"processing_time_seconds"`
	AuditRecordID    string  `json:"audit_record_id,omitempty"`
	StartDate        string  `json:"start_date"`
	EndDate          string  `json:"end_date"`
}

// StatusNoTickets is the result status for an empty date range.
const StatusNoTickets = "No tickets found in date range"

// TicketSource streams raw tickets matching a date predicate.
type TicketSource interface {
	SearchTickets(ctx context.Context, start, end time.Time) ([]zendesk.Ticket, error)
}

// FieldSource warms and serves the custom field schema.
type FieldSource interface {
	GetFields(ctx context.Context) (map[int64]zendesk.TicketField, error)
}

// TicketEnricher expands one raw ticket.
type TicketEnricher interface {
	Enrich(ctx context.Context, t zendesk.Ticket) (*enrich.EnrichedTicket, error)
}

// Embedder maps texts to vectors.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string, opts embedding.BatchOptions) ([][]float32, error)
}

// AuditWriter records terminal run state. Implementations never fail the
// run; a failed write yields an empty record ID.
type AuditWriter interface {
	RecordSuccess(ctx context.Context, start, end time.Time, ticketCount int) string
	RecordFailure(ctx context.Context, start, end time.Time, runErr error, details string) string
}
