// Package enrich expands raw tickets with their comment thread, classifies
// conversation roles, extracts the resolution, and projects custom fields
// through the field registry into a name-addressed map.
package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/support-toolchain/ticketrag/pkg/zendesk"
)

// Role identifies who authored a conversation entry.
type Role string

const (
	RoleCustomer Role = "Customer"
	RoleAgent    Role = "Agent"
)

// ConversationEntry is one message of a ticket's conversation, in
// server-returned order.
type ConversationEntry struct {
	Role      Role
	Message   string
	Timestamp time.Time
	Public    bool
}

// CustomFieldEntry is a projected custom field: the typed value plus the
// schema attributes supplied by the registry.
type CustomFieldEntry struct {
	Value       FieldValue
	Type        string
	Key         string
	Description string
}

// EnrichedTicket is the pipeline's unit of chunking.
type EnrichedTicket struct {
	ID          int64
	Subject     string
	Description string
	Status      string
	Priority    string
	Tags        []string
	CreatedAt   time.Time
	UpdatedAt   time.Time

	Conversation []ConversationEntry

	// Resolution is the last agent message with a non-whitespace body,
	// nil when no such message exists.
	Resolution *string

	// CustomFields maps the descriptor title to the projected entry.
	CustomFields map[string]CustomFieldEntry
}

// CommentLister fetches a ticket's comment thread.
type CommentLister interface {
	ListComments(ctx context.Context, ticketID int64) ([]zendesk.Comment, error)
}

// FieldResolver resolves a field ID to its schema descriptor, synthesizing
// an unknown descriptor for absent IDs.
type FieldResolver interface {
	Resolve(ctx context.Context, id int64) (zendesk.TicketField, error)
}

// Enricher turns raw tickets into EnrichedTickets.
type Enricher struct {
	comments CommentLister
	registry FieldResolver
	logger   *slog.Logger
}

// NewEnricher creates an enricher.
func NewEnricher(comments CommentLister, registry FieldResolver) *Enricher {
	return &Enricher{
		comments: comments,
		registry: registry,
		logger:   slog.Default(),
	}
}

// Enrich fetches the ticket's comment thread and builds the enriched record.
func (e *Enricher) Enrich(ctx context.Context, t zendesk.Ticket) (*EnrichedTicket, error) {
	comments, err := e.comments.ListComments(ctx, t.ID)
	if err != nil {
		return nil, fmt.Errorf("enrich ticket %d: %w", t.ID, err)
	}

	conversation := make([]ConversationEntry, 0, len(comments))
	for _, cm := range comments {
		role := RoleAgent
		if cm.AuthorID == t.RequesterID {
			role = RoleCustomer
		}
		conversation = append(conversation, ConversationEntry{
			Role:      role,
			Message:   cm.Body,
			Timestamp: cm.CreatedAt,
			Public:    cm.Public,
		})
	}

	customFields, err := e.projectCustomFields(ctx, t.CustomFields)
	if err != nil {
		return nil, fmt.Errorf("enrich ticket %d: %w", t.ID, err)
	}

	return &EnrichedTicket{
		ID:           t.ID,
		Subject:      t.Subject,
		Description:  t.Description,
		Status:       t.Status,
		Priority:     t.Priority,
		Tags:         t.Tags,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
		Conversation: conversation,
		Resolution:   extractResolution(conversation),
		CustomFields: customFields,
	}, nil
}

// extractResolution returns the message of the last agent entry with a
// non-whitespace body. Agent messages are considered regardless of their
// public flag; privacy-sensitive deployments may want to restrict this.
func extractResolution(conversation []ConversationEntry) *string {
	for i := len(conversation) - 1; i >= 0; i-- {
		entry := conversation[i]
		if entry.Role == RoleAgent && strings.TrimSpace(entry.Message) != "" {
			msg := entry.Message
			return &msg
		}
	}
	return nil
}

// projectCustomFields resolves each non-null, non-empty (field-id, value)
// pair against the registry and emits it under the descriptor's title.
func (e *Enricher) projectCustomFields(ctx context.Context, raw []zendesk.CustomField) (map[string]CustomFieldEntry, error) {
	projected := make(map[string]CustomFieldEntry)
	for _, cf := range raw {
		value := FieldValueOf(cf.Value)
		if value.IsEmpty() {
			continue
		}

		fd, err := e.registry.Resolve(ctx, cf.ID)
		if err != nil {
			return nil, fmt.Errorf("resolve field %d: %w", cf.ID, err)
		}

		projected[fd.Title] = CustomFieldEntry{
			Value:       value,
			Type:        fd.Type,
			Key:         fd.Key,
			Description: fd.Description,
		}
	}
	return projected, nil
}
