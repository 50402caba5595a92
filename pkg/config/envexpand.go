package config

import (
	"bytes"
	"os"
	"text/template"
)

// ExpandEnv expands environment variables in YAML content using Go templates.
// Uses {{.VAR_NAME}} syntax to avoid collision with literal $ characters in
// values (passwords, search query fragments, shell snippets).
//
// Examples:
//   - {{.REDIS_ADDR}} → value of REDIS_ADDR environment variable
//   - source: "zendesk-{{.ENV_NAME}}" → suffix expanded from the environment
//
// Missing variables expand to empty string; validation catches required
// fields that end up empty.
func ExpandEnv(data []byte) []byte {
	tmpl, err := template.New("config").Option("missingkey=zero").Parse(string(data))
	if err != nil {
		// YAML without template syntax passes through untouched
		return data
	}

	envMap := make(map[string]string)
	for _, env := range os.Environ() {
		// Split only on the first = to handle values containing =
		if idx := bytes.IndexByte([]byte(env), '='); idx > 0 {
			envMap[env[:idx]] = env[idx+1:]
		}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, envMap); err != nil {
		return data
	}

	return buf.Bytes()
}
