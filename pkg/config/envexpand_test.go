package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gopkg.in/yaml.v3"
)

func TestExpandEnv(t *testing.T) {
	tests := []struct {
		name  string
		input string
		env   map[string]string
		want  string
	}{
		{
			name:  "simple substitution with {{.VAR}}",
			input: "api_key: {{.API_KEY}}",
			env:   map[string]string{"API_KEY": "secret123"},
			want:  "api_key: secret123",
		},
		{
			name:  "literal ${VAR} is not expanded",
			input: "pattern: ${TICKET_ID}",
			env:   map[string]string{"TICKET_ID": "123"},
			want:  "pattern: ${TICKET_ID}",
		},
		{
			name:  "literal $ is preserved",
			input: "regex: ^ticket.*$",
			env:   map[string]string{},
			want:  "regex: ^ticket.*$",
		},
		{
			name:  "multiple substitutions in one line",
			input: "url: {{.PROTOCOL}}://{{.HOST}}:{{.PORT}}",
			env: map[string]string{
				"PROTOCOL": "https",
				"HOST":     "example.com",
				"PORT":     "443",
			},
			want: "url: https://example.com:443",
		},
		{
			name:  "missing variable expands to empty",
			input: "endpoint: {{.MISSING_VAR}}",
			env:   map[string]string{},
			want:  "endpoint: ",
		},
		{
			name:  "no substitution when no variables",
			input: "static: value",
			env:   map[string]string{"UNUSED": "value"},
			want:  "static: value",
		},
		{
			name: "variables in nested YAML structure",
			input: `ingestion:
  source: {{.SOURCE_TAG}}
  enrich_concurrency: {{.ENRICH_CONCURRENCY}}`,
			env: map[string]string{
				"SOURCE_TAG":         "zendesk",
				"ENRICH_CONCURRENCY": "10",
			},
			want: `ingestion:
  source: zendesk
  enrich_concurrency: 10`,
		},
		{
			name:  "special characters in expanded value",
			input: "password: {{.PASSWORD}}",
			env:   map[string]string{"PASSWORD": "p@ssw0rd!#$%"},
			want:  "password: p@ssw0rd!#$%",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			result := ExpandEnv([]byte(tt.input))
			assert.Equal(t, tt.want, string(result))
		})
	}
}

// Malformed template syntax must pass through unchanged so the YAML parser
// can report it (or accept it as a string literal).
func TestExpandEnvMalformedTemplates(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "unclosed template", input: "api_key: {{.API_KEY"},
		{name: "only opening braces", input: "api_key: {{"},
		{name: "missing one closing brace", input: "api_key: {{.API_KEY}"},
		{name: "variable without leading dot", input: "api_key: {{API_KEY}}"},
		{name: "undefined function", input: "api_key: {{.API_KEY | upper}}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("API_KEY", "should-not-appear")

			result := ExpandEnv([]byte(tt.input))
			assert.Equal(t, tt.input, string(result))
			assert.NotContains(t, string(result), "should-not-appear")
		})
	}
}

func TestExpandEnvPassThroughToYAMLParser(t *testing.T) {
	input := `
ingestion:
  source: "zendesk"
  upsert_batch_size: 100
`
	expanded := ExpandEnv([]byte(input))

	var result map[string]any
	err := yaml.Unmarshal(expanded, &result)
	assert.NoError(t, err)
	assert.NotNil(t, result)
}
