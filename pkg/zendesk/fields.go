package zendesk

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// UnknownFieldType tags descriptors synthesized for field IDs not present in
// the platform schema.
const UnknownFieldType = "unknown"

// fieldsPage is one page of the ticket-field schema listing.
type fieldsPage struct {
	TicketFields []TicketField `json:"ticket_fields"`
	NextPage     string        `json:"next_page"`
}

// FieldRegistry is a process-lifetime cache of the custom field schema.
// The first GetFields call triggers a paginated load; concurrent first
// callers share a single in-flight load, and the resulting map is immutable
// for the rest of the process lifetime. There is no invalidation.
type FieldRegistry struct {
	client *Client
	logger *slog.Logger

	mu     sync.Mutex
	fields map[int64]TicketField
	loaded bool
}

// NewFieldRegistry creates a registry backed by the given client.
func NewFieldRegistry(client *Client) *FieldRegistry {
	return &FieldRegistry{
		client: client,
		logger: slog.Default(),
	}
}

// GetFields returns the field-id → descriptor map, loading it on first call.
func (r *FieldRegistry) GetFields(ctx context.Context) (map[int64]TicketField, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.loaded {
		return r.fields, nil
	}

	fields, err := r.load(ctx)
	if err != nil {
		return nil, err
	}

	r.fields = fields
	r.loaded = true
	r.logger.Info("Ticket field schema loaded", "fields", len(fields))
	return r.fields, nil
}

// Resolve returns the descriptor for id. Absent IDs resolve to a synthetic
// "Unknown" descriptor named Field_<id>.
func (r *FieldRegistry) Resolve(ctx context.Context, id int64) (TicketField, error) {
	fields, err := r.GetFields(ctx)
	if err != nil {
		return TicketField{}, err
	}
	if fd, ok := fields[id]; ok {
		return fd, nil
	}
	return TicketField{
		ID:    id,
		Title: fmt.Sprintf("Field_%d", id),
		Type:  UnknownFieldType,
	}, nil
}

func (r *FieldRegistry) load(ctx context.Context) (map[int64]TicketField, error) {
	fields := make(map[int64]TicketField)
	next := "/ticket_fields.json"
	page := 0
	for next != "" {
		if page > 0 {
			if !sleepCtx(ctx, r.client.pagePause) {
				return nil, ctx.Err()
			}
		}

		var resp fieldsPage
		if err := r.client.get(ctx, next, &resp); err != nil {
			return nil, fmt.Errorf("load ticket fields: %w", err)
		}
		for _, fd := range resp.TicketFields {
			fields[fd.ID] = fd
		}
		next = resp.NextPage
		page++
	}
	return fields, nil
}
