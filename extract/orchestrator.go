package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/plateful/importer/source/fetch"
	"github.com/plateful/importer/source/urlguard"
)

// URLValidator is the safety gate applied before any outbound fetch.
type URLValidator interface {
	Validate(ctx context.Context, rawURL string) urlguard.Verdict
}

// Orchestrator runs the import chain for one source. The chain is strictly
// ordered and short-circuits on the first success; each entry is a paid or
// rate-limited external call, so extractors are never raced.
type Orchestrator struct {
	guard     URLValidator
	fetcher   DocumentFetcher
	platforms []PlatformExtractor
	chain     []Extractor
	logger    *slog.Logger
}

// NewOrchestrator builds the chain. chain is tried in order against the
// fetched document; platforms are matched against the raw URL first and
// their result is returned verbatim, with no fallthrough to the chain.
func NewOrchestrator(guard URLValidator, fetcher DocumentFetcher, platforms []PlatformExtractor, chain []Extractor, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		guard:     guard,
		fetcher:   fetcher,
		platforms: platforms,
		chain:     chain,
		logger:    logger,
	}
}

// ImportURL resolves a user-supplied URL to an extraction result.
func (o *Orchestrator) ImportURL(ctx context.Context, rawURL string) *Result {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return Fail(CodeBlankURL, "no URL was provided")
	}

	if verdict := o.guard.Validate(ctx, rawURL); !verdict.Allowed {
		o.logger.Info("URL rejected", "reason", verdict.Reason)
		return Fail(CodeInvalidURL, "the URL could not be used")
	}

	for _, p := range o.platforms {
		if p.Matches(rawURL) {
			o.logger.Debug("Dispatching to platform extractor", "extractor", p.Name())
			return p.Extract(ctx, &Input{SourceURL: rawURL})
		}
	}

	doc, err := o.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		if fe, ok := fetch.AsError(err); ok {
			return Fail(Code(fe.Code), "the page could not be fetched")
		}
		return Fail(CodeFetchFailed, "the page could not be fetched")
	}

	in := &Input{SourceURL: rawURL, Document: doc}
	for _, ex := range o.chain {
		result := ex.Extract(ctx, in)
		if result.OK() {
			o.logger.Debug("Extraction succeeded", "extractor", ex.Name())
			return result
		}
		o.logger.Debug("Extractor fell through",
			"extractor", ex.Name(),
			"code", result.Failure.Code)
	}

	return Fail(CodeNoRecipeFound, "the page was fetched but no recipe was found on it")
}

// ImportText resolves caller-supplied raw text (a note, a caption, an
// image-derived transcript) to an extraction result. The chain applies
// unchanged; extractors that need a document fall through on their own.
func (o *Orchestrator) ImportText(ctx context.Context, text string) *Result {
	if strings.TrimSpace(text) == "" {
		return Fail(CodeExtractionFailed, "no text was provided")
	}

	in := &Input{Text: text}
	var last *Result
	for _, ex := range o.chain {
		last = ex.Extract(ctx, in)
		if last.OK() {
			return last
		}
	}
	if last == nil {
		return Fail(CodeExtractionFailed, "no extractor available")
	}
	// The last failure is the meaningful one; earlier entries only signal
	// that text input is not their shape.
	return last
}

// String implements fmt.Stringer for debug logging.
func (o *Orchestrator) String() string {
	names := make([]string, 0, len(o.platforms)+len(o.chain))
	for _, p := range o.platforms {
		names = append(names, p.Name())
	}
	for _, ex := range o.chain {
		names = append(names, ex.Name())
	}
	return fmt.Sprintf("orchestrator(%s)", strings.Join(names, " -> "))
}
