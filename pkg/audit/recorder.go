// Package audit writes one structured record per ingestion run into the
// ticketing platform's custom-object store. Audit writes are best-effort:
// ingestion never fails because a record could not be written.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/support-toolchain/ticketrag/pkg/config"
	"github.com/support-toolchain/ticketrag/pkg/zendesk"
)

// Custom object type keys in the ticketing platform.
const (
	SuccessObjectKey = "rag_import_success"
	FailureObjectKey = "rag_import_failure"
)

// ObjectClient is the subset of the ticketing client the recorder needs.
type ObjectClient interface {
	CustomObjectExists(ctx context.Context, key string) (bool, error)
	CreateCustomObject(ctx context.Context, key, title, titlePlural string) error
	CreateCustomObjectField(ctx context.Context, objectKey string, field zendesk.CustomObjectField) error
	CreateCustomObjectRecord(ctx context.Context, objectKey, name string) (string, error)
	CreateCustomObjectRecordWithFields(ctx context.Context, objectKey, name string, fields map[string]any) (string, error)
	UpdateCustomObjectRecord(ctx context.Context, objectKey, recordID string, fields map[string]any) error
}

// Recorder writes success and failure records for ingestion runs.
type Recorder struct {
	client     ObjectClient
	source     string
	singleStep bool
	logger     *slog.Logger
}

// NewRecorder creates a recorder. source labels records with the origin
// system tag.
func NewRecorder(client ObjectClient, cfg config.AuditConfig, source string) *Recorder {
	return &Recorder{
		client:     client,
		source:     source,
		singleStep: cfg.SingleStepWrite,
		logger:     slog.Default(),
	}
}

var successFields = []zendesk.CustomObjectField{
	{Key: "import_date", Type: "date", Title: "Import Date"},
	{Key: "start_date", Type: "date", Title: "Start Date"},
	{Key: "end_date", Type: "date", Title: "End Date"},
	{Key: "ticket_count", Type: "integer", Title: "Ticket Count"},
	{Key: "source", Type: "text", Title: "Source"},
}

var failureFields = []zendesk.CustomObjectField{
	{Key: "error_date", Type: "date", Title: "Error Date"},
	{Key: "start_date", Type: "date", Title: "Start Date"},
	{Key: "end_date", Type: "date", Title: "End Date"},
	{Key: "error_message", Type: "text", Title: "Error Message"},
	{Key: "error_details", Type: "text", Title: "Error Details"},
	{Key: "source", Type: "text", Title: "Source"},
}

// EnsureSchema idempotently creates both custom object types and their
// fields. Field creation is attempted on every startup; the platform's 422
// "already exists" responses are absorbed.
func (r *Recorder) EnsureSchema(ctx context.Context) error {
	schemas := []struct {
		key    string
		title  string
		plural string
		fields []zendesk.CustomObjectField
	}{
		{SuccessObjectKey, "RAG Import Success", "RAG Import Successes", successFields},
		{FailureObjectKey, "RAG Import Failure", "RAG Import Failures", failureFields},
	}

	for _, schema := range schemas {
		exists, err := r.client.CustomObjectExists(ctx, schema.key)
		if err != nil {
			return fmt.Errorf("check custom object %s: %w", schema.key, err)
		}
		if !exists {
			if err := r.client.CreateCustomObject(ctx, schema.key, schema.title, schema.plural); err != nil {
				return err
			}
			r.logger.Info("Created audit custom object", "key", schema.key)
		}

		for _, field := range schema.fields {
			err := r.client.CreateCustomObjectField(ctx, schema.key, field)
			if err != nil && !zendesk.IsAlreadyExists(err) {
				return fmt.Errorf("create field %s on %s: %w", field.Key, schema.key, err)
			}
		}
	}

	r.logger.Info("Audit schema ensured")
	return nil
}

// RecordSuccess writes a success record and returns its ID, or empty string
// if the write failed (logged, never fatal).
func (r *Recorder) RecordSuccess(ctx context.Context, start, end time.Time, ticketCount int) string {
	fields := map[string]any{
		"import_date":  time.Now().UTC().Format("2006-01-02"),
		"ticket_count": ticketCount,
		"source":       r.source,
	}
	addDateRange(fields, start, end)

	name := recordName("Success")
	id := r.write(ctx, SuccessObjectKey, name, fields)
	if id != "" {
		r.logger.Info("Audit success record written", "record_id", id, "tickets", ticketCount)
	}
	return id
}

// RecordFailure writes a failure record carrying the error summary and
// stack-style detail. Returns the record ID or empty string.
func (r *Recorder) RecordFailure(ctx context.Context, start, end time.Time, runErr error, details string) string {
	fields := map[string]any{
		"error_date":    time.Now().UTC().Format("2006-01-02"),
		"error_message": runErr.Error(),
		"error_details": details,
		"source":        r.source,
	}
	addDateRange(fields, start, end)

	name := recordName("Failure")
	id := r.write(ctx, FailureObjectKey, name, fields)
	if id != "" {
		r.logger.Info("Audit failure record written", "record_id", id, "error", runErr)
	}
	return id
}

// write performs the two-step create-then-patch protocol, or a single-step
// create when the platform accepts field values at creation time.
func (r *Recorder) write(ctx context.Context, objectKey, name string, fields map[string]any) string {
	if r.singleStep {
		id, err := r.client.CreateCustomObjectRecordWithFields(ctx, objectKey, name, fields)
		if err != nil {
			r.logger.Error("Audit record write failed", "object", objectKey, "error", err)
			return ""
		}
		return id
	}

	id, err := r.client.CreateCustomObjectRecord(ctx, objectKey, name)
	if err != nil {
		r.logger.Error("Audit record create failed", "object", objectKey, "error", err)
		return ""
	}
	if err := r.client.UpdateCustomObjectRecord(ctx, objectKey, id, fields); err != nil {
		r.logger.Error("Audit record patch failed", "object", objectKey, "record_id", id, "error", err)
		return ""
	}
	return id
}

func addDateRange(fields map[string]any, start, end time.Time) {
	if !start.IsZero() {
		fields["start_date"] = start.Format("2006-01-02")
	}
	if !end.IsZero() {
		fields["end_date"] = end.Format("2006-01-02")
	}
}

// recordName synthesizes the human-readable name carried by the create call.
func recordName(kind string) string {
	return fmt.Sprintf("RAG Import %s %s %s",
		kind, time.Now().UTC().Format("2006-01-02 15:04:05"), uuid.NewString()[:8])
}
