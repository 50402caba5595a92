package zendesk

import (
	"encoding/json"
	"fmt"
	"time"
)

// Ticket is a raw ticket record as returned by the search API.
type Ticket struct {
	ID           int64         `json:"id"`
	Subject      string        `json:"subject"`
	Description  string        `json:"description"`
	Status       string        `json:"status"`
	Priority     string        `json:"priority"`
	Tags         []string      `json:"tags"`
	RequesterID  int64         `json:"requester_id"`
	AssigneeID   int64         `json:"assignee_id"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
	CustomFields []CustomField `json:"custom_fields"`
}

// CustomField is an untyped (field-id, value) pair on a ticket. The value
// arrives as a string, number, bool, list of strings, or null; the field
// registry supplies the declared type.
type CustomField struct {
	ID    int64 `json:"id"`
	Value any   `json:"value"`
}

// UnmarshalJSON handles the mixed value types the platform emits.
func (cf *CustomField) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID    int64           `json:"id"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	cf.ID = raw.ID

	if len(raw.Value) == 0 || string(raw.Value) == "null" {
		cf.Value = nil
		return nil
	}

	var v any
	if err := json.Unmarshal(raw.Value, &v); err != nil {
		return err
	}
	switch tv := v.(type) {
	case string, float64, bool:
		cf.Value = tv
	case []any:
		list := make([]string, 0, len(tv))
		for _, item := range tv {
			s, ok := item.(string)
			if !ok {
				return fmt.Errorf("%T is an invalid type for custom field list value", item)
			}
			list = append(list, s)
		}
		cf.Value = list
	default:
		return fmt.Errorf("%T is an invalid type for custom field value", tv)
	}
	return nil
}

// Comment is one entry in a ticket's conversation, in server-returned order.
type Comment struct {
	ID        int64     `json:"id"`
	AuthorID  int64     `json:"author_id"`
	Body      string    `json:"body"`
	Public    bool      `json:"public"`
	CreatedAt time.Time `json:"created_at"`
}

// TicketField describes one custom field in the platform's form schema.
type TicketField struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Type        string `json:"type"` // text, integer, decimal, date, tagger, ...
	Key         string `json:"key,omitempty"`
	Description string `json:"description,omitempty"`
}
