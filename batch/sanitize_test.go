package batch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "empty string",
			input: "",
			want:  "",
		},
		{
			name:  "plain text unchanged",
			input: "Quarterly review meeting notes",
			want:  "Quarterly review meeting notes",
		},
		{
			name:  "decodes entities before stripping tags",
			input: "Tom &amp; Jerry &lt;b&gt;bold&lt;/b&gt;",
			want:  "Tom & Jerry bold",
		},
		{
			// Tags are replaced with nothing, not a space; "Hello<br/>world"
			// joins into one word.
			name:  "strips html tags",
			input: "Hello<br/>world <img src=\"x\"/> done",
			want:  "Helloworld done",
		},
		{
			name:  "replaces http urls",
			input: "see https://example.com/path?q=1 for details",
			want:  "see [URL] for details",
		},
		{
			name:  "replaces www urls",
			input: "visit www.example.com today",
			want:  "visit [URL] today",
		},
		{
			name:  "replaces at sign",
			input: "contact alice@example.com",
			want:  "contact alice at example.com",
		},
		{
			name:  "drops asterisks",
			input: "*important* note",
			want:  "important note",
		},
		{
			name:  "collapses whitespace",
			input: "a  b\n\nc\td",
			want:  "a b c d",
		},
		{
			name:  "trims leading and trailing space",
			input: "  padded  ",
			want:  "padded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.input))
		})
	}
}

func TestSanitize_OrderMatters(t *testing.T) {
	// The encoded tag must be decoded first so it is stripped as a tag.
	got := Sanitize("&lt;script&gt;alert(1)&lt;/script&gt;rest")
	assert.Equal(t, "alert(1)rest", got)
}

func TestCleanSender(t *testing.T) {
	tests := []struct {
		name   string
		sender string
		want   string
	}{
		{
			name:   "display name with address",
			sender: "John Doe <john@example.com>",
			want:   "John Doe",
		},
		{
			name:   "quoted display name",
			sender: "Doe, Jane <jane@example.com>",
			want:   "Doe, Jane",
		},
		{
			name:   "bare address",
			sender: "noreply@company.com",
			want:   "noreply at company.com",
		},
		{
			name:   "empty",
			sender: "",
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanSender(tt.sender))
		})
	}
}
