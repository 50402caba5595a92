package zendesk

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCustomFieldUnmarshalMixedTypes(t *testing.T) {
	tests := []struct {
		name string
		json string
		want any
	}{
		{"string", `{"id":1,"value":"high"}`, "high"},
		{"number", `{"id":1,"value":3.5}`, 3.5},
		{"bool", `{"id":1,"value":true}`, true},
		{"list", `{"id":1,"value":["a","b"]}`, []string{"a", "b"}},
		{"null", `{"id":1,"value":null}`, nil},
		{"absent", `{"id":1}`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cf CustomField
			require.NoError(t, json.Unmarshal([]byte(tt.json), &cf))
			assert.Equal(t, int64(1), cf.ID)
			assert.Equal(t, tt.want, cf.Value)
		})
	}
}

func TestCustomFieldUnmarshalRejectsObjects(t *testing.T) {
	var cf CustomField
	err := json.Unmarshal([]byte(`{"id":1,"value":{"nested":true}}`), &cf)
	assert.Error(t, err)
}

func TestCustomFieldUnmarshalRejectsMixedLists(t *testing.T) {
	var cf CustomField
	err := json.Unmarshal([]byte(`{"id":1,"value":["a",2]}`), &cf)
	assert.Error(t, err)
}

func TestTicketUnmarshal(t *testing.T) {
	data := `{
		"id": 42,
		"subject": "VPN drops",
		"description": "hourly resets",
		"status": "solved",
		"priority": "high",
		"tags": ["vpn"],
		"requester_id": 100,
		"assignee_id": 200,
		"custom_fields": [{"id":10,"value":"vpn-client"}]
	}`

	var ticket Ticket
	require.NoError(t, json.Unmarshal([]byte(data), &ticket))
	assert.Equal(t, int64(42), ticket.ID)
	assert.Equal(t, int64(100), ticket.RequesterID)
	require.Len(t, ticket.CustomFields, 1)
	assert.Equal(t, "vpn-client", ticket.CustomFields[0].Value)
}
