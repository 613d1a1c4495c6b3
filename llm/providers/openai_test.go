package providers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plateful/importer/llm"
)

func TestOpenAIBuildURL(t *testing.T) {
	p := &OpenAIProvider{}

	assert.Equal(t, "https://api.openai.com/v1/chat/completions", p.BuildURL(""))
	assert.Equal(t, "https://gw.example.com/v1/chat/completions", p.BuildURL("https://gw.example.com/v1"))
	// Already-complete URLs pass through
	assert.Equal(t, "https://gw.example.com/v1/chat/completions", p.BuildURL("https://gw.example.com/v1/chat/completions"))
}

func TestOpenAISetHeaders(t *testing.T) {
	p := &OpenAIProvider{}
	req, _ := http.NewRequest(http.MethodPost, "https://api.openai.com/v1/chat/completions", nil)

	p.SetHeaders(req, "sk-test")

	assert.Equal(t, "Bearer sk-test", req.Header.Get("Authorization"))
}

func TestOpenAIBuildRequestBody(t *testing.T) {
	p := &OpenAIProvider{}
	temp := 0.0

	body, err := p.BuildRequestBody("gpt-test", []llm.Message{
		{Role: "system", Content: "You are a recipe parser."},
		{Role: "user", Content: "Parse this."},
	}, &temp, 2048)
	require.NoError(t, err)

	var req map[string]any
	require.NoError(t, json.Unmarshal(body, &req))

	assert.Equal(t, "gpt-test", req["model"])
	assert.Equal(t, float64(0), req["temperature"])
	assert.Equal(t, float64(2048), req["max_tokens"])

	messages, ok := req["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
}

func TestOpenAIParseResponse(t *testing.T) {
	p := &OpenAIProvider{}

	body := `{
		"id": "chatcmpl-1",
		"model": "gpt-test",
		"choices": [{"index": 0, "message": {"role": "assistant", "content": "done"}, "finish_reason": "stop"}],
		"usage": {"prompt_tokens": 20, "completion_tokens": 4, "total_tokens": 24}
	}`

	resp, err := p.ParseResponse([]byte(body), "gpt-test")
	require.NoError(t, err)

	assert.Equal(t, "done", resp.Content)
	assert.Equal(t, 24, resp.Usage.TotalTokens)
	assert.Equal(t, "stop", resp.FinishReason)
}

func TestOpenAIParseResponseNoChoices(t *testing.T) {
	p := &OpenAIProvider{}

	_, err := p.ParseResponse([]byte(`{"model": "gpt-test", "choices": []}`), "gpt-test")
	require.Error(t, err)
}
