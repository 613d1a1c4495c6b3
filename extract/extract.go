// Package extract defines the recipe extraction contract: the normalized
// attribute set produced by a successful extraction, the failure taxonomy,
// and the ordered fallback chain that tries extractors until one succeeds.
package extract

import (
	"context"

	"github.com/plateful/importer/source/fetch"
)

// Code identifies why an extraction attempt failed. Codes are stable
// identifiers persisted with failed imports and mapped to user-facing
// messages by the import worker.
type Code string

const (
	// Pre-I/O rejection.
	CodeBlankURL   Code = "blank_url"
	CodeInvalidURL Code = "invalid_url"

	// Transport.
	CodeFetchFailed        Code = "fetch_failed"
	CodeInvalidContentType Code = "invalid_content_type"
	CodeResponseTooLarge   Code = "response_too_large"
	CodeTooManyRedirects   Code = "too_many_redirects"
	CodeTimeout            Code = "timeout"
	CodeConnectionFailed   Code = "connection_failed"

	// Extraction. CodeNoJSONLD is an internal fallthrough signal and is
	// never surfaced to users.
	CodeNoJSONLD         Code = "no_json_ld"
	CodeExtractionFailed Code = "extraction_failed"
	CodeLLMTimeout       Code = "llm_timeout"
	CodeLLMError         Code = "llm_error"
	CodeNoRecipeFound    Code = "no_recipe_found"

	// Platform.
	CodeApifyMissingToken      Code = "apify_missing_token"
	CodeApifyFailed            Code = "apify_failed"
	CodeApifyInvalidResponse   Code = "apify_invalid_response"
	CodeApifyTimeout           Code = "apify_timeout"
	CodeApifyConnectionFailed  Code = "apify_connection_failed"
	CodeInstagramEmptyResult   Code = "instagram_empty_result"
	CodeInstagramNoCaption     Code = "instagram_no_caption"
)

// Attributes is the normalized recipe record produced by a successful
// extraction. Name is always non-blank; list fields are trimmed with blank
// entries removed. Optional numeric fields are nil when the source did not
// provide them (never zero-valued stand-ins).
type Attributes struct {
	Name            string   `json:"name"`
	Ingredients     []string `json:"ingredients"`
	Instructions    []string `json:"instructions"`
	PrepTimeMinutes *int     `json:"prep_time_minutes,omitempty"`
	CookTimeMinutes *int     `json:"cook_time_minutes,omitempty"`
	Servings        *int     `json:"servings,omitempty"`
	Notes           string   `json:"notes,omitempty"`
	SourceURL       string   `json:"source_url,omitempty"`
	CoverImageURL   string   `json:"cover_image_url,omitempty"`
}

// Failure describes an unsuccessful extraction attempt.
type Failure struct {
	Code    Code   `json:"code"`
	Message string `json:"message,omitempty"`
}

// Result is the outcome of one extraction attempt: exactly one of
// Attributes or Failure is set.
type Result struct {
	Attributes *Attributes `json:"attributes,omitempty"`
	Failure    *Failure    `json:"failure,omitempty"`
}

// OK reports whether the extraction succeeded.
func (r *Result) OK() bool {
	return r != nil && r.Attributes != nil
}

// Success wraps attributes in a successful result.
func Success(attrs *Attributes) *Result {
	return &Result{Attributes: attrs}
}

// Fail builds a failed result with the given code and message.
func Fail(code Code, message string) *Result {
	return &Result{Failure: &Failure{Code: code, Message: message}}
}

// Input carries the material an extractor works on. For fetched web pages
// Document is set and Text is empty; for raw prose (pasted text, platform
// captions, image-derived text) Text is set and Document is nil. Extractors
// use this shape to pick their handling, so a given chain entry never needs
// out-of-band hints.
type Input struct {
	// SourceURL is the caller-supplied URL, empty for raw text imports.
	// It is the only URL ever recorded on extracted attributes.
	SourceURL string

	// Document is the fetched page, nil for raw text input.
	Document *fetch.Document

	// Text is raw prose input, empty when Document is set.
	Text string
}

// Extractor is one stage of the fallback chain. Implementations return a
// typed Result for every expected outcome; only genuinely unexpected
// conditions surface as Failure results with CodeExtractionFailed.
type Extractor interface {
	// Name identifies the extractor in logs.
	Name() string

	// Extract attempts to derive recipe attributes from the input.
	Extract(ctx context.Context, in *Input) *Result
}

// PlatformExtractor handles URLs belonging to known social platforms.
// When Matches reports true the orchestrator dispatches to it exclusively,
// with no fallthrough to generic scraping.
type PlatformExtractor interface {
	Extractor
	Matches(rawURL string) bool
}

// DocumentFetcher retrieves a document for an already-validated URL.
// Satisfied by *fetch.Fetcher.
type DocumentFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*fetch.Document, error)
}
