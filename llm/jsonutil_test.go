package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "bare object",
			content: `{"name": "Pancakes"}`,
			want:    `{"name": "Pancakes"}`,
		},
		{
			name:    "markdown fenced",
			content: "Here you go:\n```json\n{\"name\": \"Pancakes\"}\n```\nEnjoy!",
			want:    `{"name": "Pancakes"}`,
		},
		{
			name:    "fence without language tag",
			content: "```\n{\"name\": \"Pancakes\"}\n```",
			want:    `{"name": "Pancakes"}`,
		},
		{
			name:    "surrounding prose",
			content: `Sure! The recipe is {"name": "Pancakes"} as requested.`,
			want:    `{"name": "Pancakes"}`,
		},
		{
			name:    "no json at all",
			content: "I could not find a recipe on that page.",
			want:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractJSON(tt.content))
		})
	}
}

func TestExtractJSONCleansArtifacts(t *testing.T) {
	content := `{
		"name": "Pancakes", // the classic
		"ingredients": ["flour", "milk",],
		"sourceUrl": "https://example.com/recipe" // note the scheme
	}`

	cleaned := ExtractJSON(content)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal([]byte(cleaned), &parsed))
	assert.Equal(t, "Pancakes", parsed["name"])
	assert.Equal(t, "https://example.com/recipe", parsed["sourceUrl"])
}

func TestStripLineCommentKeepsURLs(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{`"url": "http://example.com"`, `"url": "http://example.com"`},
		{`"url": "http://example.com" // comment`, `"url": "http://example.com"`},
		{`"path\\to\\file", // windows`, `"path\\to\\file",`},
		{`// whole line comment`, ``},
		{`no comment here`, `no comment here`},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, stripLineComment(tt.line), "line: %s", tt.line)
	}
}
