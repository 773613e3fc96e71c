package openai

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripFences(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "no fences", input: `{"a":1}`, want: `{"a":1}`},
		{name: "json fence", input: "```json\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "bare fence", input: "```\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "surrounding whitespace", input: "  {\"a\":1}  ", want: `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripFences(tt.input))
		})
	}
}

func TestRepairJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "valid json untouched",
			input: `{"entities": [{"name": "Acme", "type": "Company"}]}`,
			want:  `{"entities": [{"name": "Acme", "type": "Company"}]}`,
		},
		{
			name:  "missing opening quote after comma",
			input: `{"name": "Acme", type": "Company"}`,
			want:  `{"name": "Acme", "type": "Company"}`,
		},
		{
			name:  "missing opening quote after brace",
			input: `{name": "Acme"}`,
			want:  `{"name": "Acme"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := repairJSON(tt.input)
			assert.Equal(t, tt.want, got)

			var out map[string]any
			require.NoError(t, json.Unmarshal([]byte(got), &out), "repaired output must parse")
		})
	}
}
