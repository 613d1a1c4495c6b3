package providers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plateful/importer/llm"
)

func TestAnthropicBuildURL(t *testing.T) {
	p := &AnthropicProvider{}

	assert.Equal(t, "https://api.anthropic.com/v1/messages", p.BuildURL(""))
	assert.Equal(t, "https://proxy.internal/v1/messages", p.BuildURL("https://proxy.internal"))
	assert.Equal(t, "https://proxy.internal/v1/messages", p.BuildURL("https://proxy.internal/"))
}

func TestAnthropicSetHeaders(t *testing.T) {
	p := &AnthropicProvider{}
	req, _ := http.NewRequest(http.MethodPost, "https://api.anthropic.com/v1/messages", nil)

	p.SetHeaders(req, "sk-test")

	assert.Equal(t, "sk-test", req.Header.Get("x-api-key"))
	assert.Equal(t, anthropicVersion, req.Header.Get("anthropic-version"))
}

func TestAnthropicBuildRequestBody(t *testing.T) {
	p := &AnthropicProvider{}

	body, err := p.BuildRequestBody("claude-test", []llm.Message{
		{Role: "system", Content: "You are a recipe parser."},
		{Role: "user", Content: "Parse this."},
	}, nil, 0)
	require.NoError(t, err)

	var req map[string]any
	require.NoError(t, json.Unmarshal(body, &req))

	assert.Equal(t, "claude-test", req["model"])
	assert.Equal(t, "You are a recipe parser.", req["system"])
	assert.Equal(t, float64(4096), req["max_tokens"])

	messages, ok := req["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 1)
}

func TestAnthropicParseResponse(t *testing.T) {
	p := &AnthropicProvider{}

	body := `{
		"id": "msg_1",
		"type": "message",
		"role": "assistant",
		"content": [{"type": "text", "text": "part one "}, {"type": "text", "text": "part two"}],
		"model": "claude-test",
		"stop_reason": "end_turn",
		"usage": {"input_tokens": 100, "output_tokens": 30}
	}`

	resp, err := p.ParseResponse([]byte(body), "claude-test")
	require.NoError(t, err)

	assert.Equal(t, "part one part two", resp.Content)
	assert.Equal(t, "claude-test", resp.Model)
	assert.Equal(t, 130, resp.Usage.TotalTokens)
	assert.Equal(t, "end_turn", resp.FinishReason)
}
