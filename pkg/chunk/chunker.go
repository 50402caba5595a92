// Package chunk decomposes enriched tickets into semantically typed text
// chunks sized for the embedding model's token budget.
package chunk

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/support-toolchain/ticketrag/pkg/enrich"
)

// MaxChunkChars bounds chunk text length. At a conservative 4 chars/token
// this stays well under the embedding model's token budget.
const MaxChunkChars = 4000

// Type classifies what a chunk carries.
type Type string

const (
	TypeOverview     Type = "overview"
	TypeConversation Type = "conversation"
	TypeResolution   Type = "resolution"
	TypeCustomFields Type = "custom_fields"
)

// Metadata is the structured payload attached to each chunk.
type Metadata struct {
	Type     Type
	TicketID int64
	Subject  string
	Tags     []string

	// Part and TotalParts are 1-indexed and set on every conversation chunk
	// that was split across multiple parts.
	Part       int
	TotalParts int

	// FieldCount is set on custom_fields chunks.
	FieldCount int

	Status   string
	Priority string
}

// ToMap renders the metadata for the vector store, omitting unset fields.
func (m Metadata) ToMap() map[string]any {
	out := map[string]any{
		"type":      string(m.Type),
		"ticket_id": fmt.Sprintf("%d", m.TicketID),
		"subject":   m.Subject,
	}
	if len(m.Tags) > 0 {
		out["tags"] = m.Tags
	}
	if m.TotalParts > 0 {
		out["part"] = m.Part
		out["total_parts"] = m.TotalParts
	}
	if m.FieldCount > 0 {
		out["field_count"] = m.FieldCount
	}
	if m.Status != "" {
		out["status"] = m.Status
	}
	if m.Priority != "" {
		out["priority"] = m.Priority
	}
	return out
}

// Chunk is the unit of embedding: bounded text plus structured metadata.
type Chunk struct {
	Text     string
	Metadata Metadata
}

// VectorID builds the deterministic vector identifier for a chunk. Within a
// run the (ticket-id, index) pair is unique; runTimestamp disambiguates
// replays.
func VectorID(sourceTag string, ticketID int64, index int, runTimestamp int64) string {
	return fmt.Sprintf("%s-ticket-%d-chunk-%d-%d", sourceTag, ticketID, index, runTimestamp)
}

// Build produces the ordered chunk list for a ticket: overview (always),
// conversation parts, resolution, custom fields. Output is deterministic.
func Build(t *enrich.EnrichedTicket) []Chunk {
	chunks := []Chunk{overviewChunk(t)}
	chunks = append(chunks, conversationChunks(t)...)
	if t.Resolution != nil {
		chunks = append(chunks, resolutionChunk(t))
	}
	if len(t.CustomFields) > 0 {
		chunks = append(chunks, customFieldsChunk(t))
	}
	return chunks
}

func overviewChunk(t *enrich.EnrichedTicket) Chunk {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Ticket %d: %s\n", t.ID, t.Subject)
	fmt.Fprintf(&sb, "Description: %s\n", t.Description)
	fmt.Fprintf(&sb, "Status: %s\n", t.Status)
	fmt.Fprintf(&sb, "Priority: %s\n", t.Priority)
	fmt.Fprintf(&sb, "Tags: %s", strings.Join(t.Tags, ", "))

	if len(t.CustomFields) > 0 {
		sb.WriteString("\n\nCustom Fields:")
		for _, name := range sortedFieldNames(t.CustomFields) {
			fmt.Fprintf(&sb, "\n%s: %s", name, t.CustomFields[name].Value.String())
		}
	}

	return Chunk{
		Text: sb.String(),
		Metadata: Metadata{
			Type:     TypeOverview,
			TicketID: t.ID,
			Subject:  t.Subject,
			Tags:     t.Tags,
			Status:   t.Status,
			Priority: t.Priority,
		},
	}
}

// conversationChunks serializes the conversation and splits it into
// consecutive parts of at most MaxChunkChars when it exceeds the cap. Each
// part is suffixed with a 1-indexed "[Ticket <id> Part k/N]" marker, which
// keeps the ticket identifier in every part's text; stripping the markers and
// concatenating the parts reconstructs the serialized text exactly.
func conversationChunks(t *enrich.EnrichedTicket) []Chunk {
	if len(t.Conversation) == 0 {
		return nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Ticket %d Conversation:", t.ID)
	for i, entry := range t.Conversation {
		fmt.Fprintf(&sb, "\n%d. %s: %s", i+1, entry.Role, entry.Message)
	}
	full := sb.String()

	meta := Metadata{
		Type:     TypeConversation,
		TicketID: t.ID,
		Subject:  t.Subject,
		Tags:     t.Tags,
	}

	if len(full) <= MaxChunkChars {
		return []Chunk{{Text: full, Metadata: meta}}
	}

	parts := splitAtRuneBoundaries(full, MaxChunkChars)
	total := len(parts)
	chunks := make([]Chunk, 0, total)
	for k, part := range parts {
		partMeta := meta
		partMeta.Part = k + 1
		partMeta.TotalParts = total
		chunks = append(chunks, Chunk{
			Text:     fmt.Sprintf("%s\n[Ticket %d Part %d/%d]", part, t.ID, k+1, total),
			Metadata: partMeta,
		})
	}
	return chunks
}

// splitAtRuneBoundaries cuts s into consecutive pieces of at most max bytes,
// never splitting a UTF-8 rune. Concatenating the pieces yields s exactly.
func splitAtRuneBoundaries(s string, max int) []string {
	var parts []string
	for len(s) > max {
		cut := max
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		if cut == 0 {
			cut = max
		}
		parts = append(parts, s[:cut])
		s = s[cut:]
	}
	return append(parts, s)
}

func resolutionChunk(t *enrich.EnrichedTicket) Chunk {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Ticket %d Resolution\n", t.ID)
	fmt.Fprintf(&sb, "Problem: %s\n", t.Subject)
	fmt.Fprintf(&sb, "Solution: %s\n", *t.Resolution)
	fmt.Fprintf(&sb, "Related Tags: %s", strings.Join(t.Tags, ", "))

	return Chunk{
		Text: sb.String(),
		Metadata: Metadata{
			Type:     TypeResolution,
			TicketID: t.ID,
			Subject:  t.Subject,
			Tags:     t.Tags,
		},
	}
}

func customFieldsChunk(t *enrich.EnrichedTicket) Chunk {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Ticket %d Custom Fields:", t.ID)
	for _, name := range sortedFieldNames(t.CustomFields) {
		entry := t.CustomFields[name]
		fmt.Fprintf(&sb, "\n%s (%s): %s", name, entry.Type, entry.Value.String())
	}

	return Chunk{
		Text: sb.String(),
		Metadata: Metadata{
			Type:       TypeCustomFields,
			TicketID:   t.ID,
			Subject:    t.Subject,
			Tags:       t.Tags,
			FieldCount: len(t.CustomFields),
		},
	}
}

// sortedFieldNames keeps chunk text deterministic across runs; map iteration
// order is not.
func sortedFieldNames(fields map[string]enrich.CustomFieldEntry) []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
