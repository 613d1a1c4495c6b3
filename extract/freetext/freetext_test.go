package freetext

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plateful/importer/extract"
	"github.com/plateful/importer/llm"
	"github.com/plateful/importer/llm/testutil"
	"github.com/plateful/importer/source/fetch"
)

const validCompletion = `{
	"name": "Weeknight Curry",
	"ingredients": ["1 onion", "  ", "400g chickpeas"],
	"instructions": ["Fry the onion", "Add the chickpeas"],
	"cookTimeMinutes": 25,
	"servings": 2,
	"notes": "Freezes well."
}`

func TestExtractRawProse(t *testing.T) {
	mock := &testutil.MockLLMClient{
		Responses: []*llm.Response{{Content: validCompletion, Model: "test-model"}},
	}

	result := New(mock).Extract(context.Background(), &extract.Input{
		SourceURL: "https://example.com/post/1",
		Text:      "Weeknight curry! Fry an onion, add 400g chickpeas...",
	})

	require.True(t, result.OK(), "expected success, got %+v", result.Failure)

	attrs := result.Attributes
	assert.Equal(t, "Weeknight Curry", attrs.Name)
	assert.Equal(t, []string{"1 onion", "400g chickpeas"}, attrs.Ingredients)
	assert.Equal(t, []string{"Fry the onion", "Add the chickpeas"}, attrs.Instructions)
	require.NotNil(t, attrs.CookTimeMinutes)
	assert.Equal(t, 25, *attrs.CookTimeMinutes)
	assert.Nil(t, attrs.PrepTimeMinutes)
	assert.Equal(t, "Freezes well.", attrs.Notes)
	assert.Equal(t, "https://example.com/post/1", attrs.SourceURL)

	reqs := mock.GetCapturedRequests()
	require.Len(t, reqs, 1)
	assert.Equal(t, rawProseSystemPrompt, reqs[0].Messages[0].Content)
}

func TestExtractWebpageUsesWebpagePrompt(t *testing.T) {
	mock := &testutil.MockLLMClient{
		Responses: []*llm.Response{{Content: validCompletion, Model: "test-model"}},
	}

	body := `<html><head><script>tracking()</script></head><body>
		<nav>Home | Recipes</nav>
		<article><h1>Weeknight Curry</h1><p>Fry an onion, add chickpeas.</p></article>
		<footer>© example.com</footer>
	</body></html>`

	result := New(mock).Extract(context.Background(), &extract.Input{
		SourceURL: "https://example.com/recipes/curry",
		Document:  &fetch.Document{Body: []byte(body), ContentType: "text/html"},
	})

	require.True(t, result.OK())

	reqs := mock.GetCapturedRequests()
	require.Len(t, reqs, 1)
	assert.Equal(t, webpageSystemPrompt, reqs[0].Messages[0].Content)
	assert.NotContains(t, reqs[0].Messages[1].Content, "tracking()")
}

func TestExtractFencedCompletion(t *testing.T) {
	mock := &testutil.MockLLMClient{
		Responses: []*llm.Response{{
			Content: "Here is the recipe:\n```json\n" + validCompletion + "\n```",
		}},
	}

	result := New(mock).Extract(context.Background(), &extract.Input{Text: "some recipe text"})
	require.True(t, result.OK())
	assert.Equal(t, "Weeknight Curry", result.Attributes.Name)
}

func TestExtractBlankNameFails(t *testing.T) {
	// Populated arrays do not rescue a nameless result.
	mock := &testutil.MockLLMClient{
		Responses: []*llm.Response{{
			Content: `{"name": "", "ingredients": ["1 onion"], "instructions": ["Fry it"]}`,
		}},
	}

	result := New(mock).Extract(context.Background(), &extract.Input{Text: "not a recipe"})
	require.False(t, result.OK())
	assert.Equal(t, extract.CodeExtractionFailed, result.Failure.Code)
}

func TestExtractFailureClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want extract.Code
	}{
		{
			name: "deadline exceeded",
			err:  fmt.Errorf("all attempts failed: %w", context.DeadlineExceeded),
			want: extract.CodeLLMTimeout,
		},
		{
			name: "provider API error",
			err:  llm.NewFatalError(errors.New("LLM API error (status 401): unauthorized")),
			want: extract.CodeLLMError,
		},
		{
			name: "transient exhausted",
			err:  llm.NewTransientError(errors.New("LLM API error (status 503): overloaded")),
			want: extract.CodeLLMError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &testutil.MockLLMClient{Err: tt.err}
			result := New(mock).Extract(context.Background(), &extract.Input{Text: "text"})
			require.False(t, result.OK())
			assert.Equal(t, tt.want, result.Failure.Code)
		})
	}
}

func TestExtractMalformedCompletions(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"no json at all", "I cannot find a recipe in this text."},
		{"unparseable json", `{"name": "Broken`},
		{"schema violation", `{"name": "X", "ingredients": "not an array", "instructions": []}`},
		{"missing required fields", `{"name": "X"}`},
		{"non-integer servings", `{"name": "X", "ingredients": [], "instructions": [], "servings": "four"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &testutil.MockLLMClient{
				Responses: []*llm.Response{{Content: tt.content}},
			}
			result := New(mock).Extract(context.Background(), &extract.Input{Text: "text"})
			require.False(t, result.OK())
			assert.Equal(t, extract.CodeExtractionFailed, result.Failure.Code)
		})
	}
}

func TestExtractEmptyInput(t *testing.T) {
	mock := &testutil.MockLLMClient{}

	result := New(mock).Extract(context.Background(), &extract.Input{})
	require.False(t, result.OK())
	assert.Equal(t, extract.CodeExtractionFailed, result.Failure.Code)
	assert.Equal(t, 0, mock.GetCallCount())
}

func TestTruncateAtBoundary(t *testing.T) {
	para := strings.Repeat("word ", 100)
	text := para + "\n\n" + para + "\n\n" + para

	got := truncateAtBoundary(text, 1200)
	assert.LessOrEqual(t, len(got), 1200)
	assert.True(t, strings.HasSuffix(got, "word"), "should cut at a paragraph break")

	// Short input passes through untouched.
	assert.Equal(t, "short", truncateAtBoundary("short", 1200))
}

func TestExtractTruncatesOversizedText(t *testing.T) {
	mock := &testutil.MockLLMClient{
		Responses: []*llm.Response{{Content: validCompletion}},
	}

	result := New(mock).Extract(context.Background(), &extract.Input{
		Text: strings.Repeat("pancake batter\n", 3000),
	})

	require.True(t, result.OK())
	reqs := mock.GetCapturedRequests()
	require.Len(t, reqs, 1)
	assert.LessOrEqual(t, len(reqs[0].Messages[1].Content), maxInputChars)
}

func TestCollapseWhitespace(t *testing.T) {
	in := "a   b\t\tc\n\n\n\n\nd"
	assert.Equal(t, "a b c\n\nd", collapseWhitespace(in))
}
