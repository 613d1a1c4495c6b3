// Package freetext extracts recipe attributes from unstructured text by way
// of a schema-constrained LLM completion. It handles both raw prose (captions,
// dictated notes) and reduced webpage content; the input shape decides which
// prompt frames the request.
package freetext

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/plateful/importer/extract"
	"github.com/plateful/importer/llm"
)

// defaultDeadline bounds one completion call regardless of the provider's
// own timeout handling.
const defaultDeadline = 90 * time.Second

type Extractor struct {
	client   llm.Completer
	deadline time.Duration
	logger   *slog.Logger
}

type Option func(*Extractor)

// WithDeadline overrides the per-call completion deadline.
func WithDeadline(d time.Duration) Option {
	return func(e *Extractor) {
		e.deadline = d
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) {
		e.logger = logger
	}
}

func New(client llm.Completer, opts ...Option) *Extractor {
	e := &Extractor{
		client:   client,
		deadline: defaultDeadline,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Extractor) Name() string {
	return "freetext"
}

// Extract sends the input text to the completion endpoint and parses the
// schema-constrained response. Raw text input uses the prose prompt;
// document input is reduced to readable text and uses the webpage prompt.
func (e *Extractor) Extract(ctx context.Context, in *extract.Input) *extract.Result {
	text, systemPrompt := e.prepareInput(in)
	if strings.TrimSpace(text) == "" {
		return extract.Fail(extract.CodeExtractionFailed, "no text to extract from")
	}

	ctx, cancel := context.WithTimeout(ctx, e.deadline)
	defer cancel()

	temperature := 0.0
	resp, err := e.client.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: text},
		},
		Temperature: &temperature,
	})
	if err != nil {
		return classifyCompletionError(err)
	}

	attrs, err := parseCompletion(resp.Content, in.SourceURL)
	if err != nil {
		e.logger.Debug("Completion failed validation", "error", err)
		return extract.Fail(extract.CodeExtractionFailed, "model response did not contain a usable recipe")
	}
	return extract.Success(attrs)
}

func (e *Extractor) prepareInput(in *extract.Input) (text, systemPrompt string) {
	if in.Text != "" {
		return truncateAtBoundary(collapseWhitespace(in.Text), maxInputChars), rawProseSystemPrompt
	}
	if in.Document != nil {
		return newReducer().Reduce(in.Document.Body, in.SourceURL), webpageSystemPrompt
	}
	return "", ""
}

// classifyCompletionError maps transport-level failures to llm_timeout and
// provider-level failures to llm_error.
func classifyCompletionError(err error) *extract.Result {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return extract.Fail(extract.CodeLLMTimeout, "recipe analysis timed out")
	case errors.As(err, &netErr):
		return extract.Fail(extract.CodeLLMTimeout, "could not reach the recipe analysis service")
	default:
		return extract.Fail(extract.CodeLLMError, "recipe analysis service returned an error")
	}
}

// llmRecipe mirrors the completion schema.
type llmRecipe struct {
	Name            string   `json:"name"`
	Ingredients     []string `json:"ingredients"`
	Instructions    []string `json:"instructions"`
	PrepTimeMinutes *int     `json:"prepTimeMinutes"`
	CookTimeMinutes *int     `json:"cookTimeMinutes"`
	Servings        *int     `json:"servings"`
	Notes           *string  `json:"notes"`
}

// parseCompletion extracts, validates, and normalizes the model's JSON
// output. A blank name disqualifies the whole result even when the arrays
// are populated.
func parseCompletion(content, sourceURL string) (*extract.Attributes, error) {
	raw := llm.ExtractJSON(content)
	if raw == "" {
		return nil, fmt.Errorf("no JSON object in completion")
	}

	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return nil, fmt.Errorf("unmarshal completion: %w", err)
	}
	if err := recipeSchema.Validate(value); err != nil {
		return nil, fmt.Errorf("completion failed schema validation: %w", err)
	}

	var recipe llmRecipe
	if err := json.Unmarshal([]byte(raw), &recipe); err != nil {
		return nil, fmt.Errorf("decode completion: %w", err)
	}

	name := strings.TrimSpace(recipe.Name)
	if name == "" {
		return nil, fmt.Errorf("completion has no recipe name")
	}

	attrs := &extract.Attributes{
		Name:            name,
		Ingredients:     cleanList(recipe.Ingredients),
		Instructions:    cleanList(recipe.Instructions),
		PrepTimeMinutes: recipe.PrepTimeMinutes,
		CookTimeMinutes: recipe.CookTimeMinutes,
		Servings:        recipe.Servings,
		SourceURL:       sourceURL,
	}
	if recipe.Notes != nil {
		attrs.Notes = strings.TrimSpace(*recipe.Notes)
	}
	return attrs, nil
}

func cleanList(items []string) []string {
	var out []string
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
