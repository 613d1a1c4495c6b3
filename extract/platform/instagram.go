// Package platform extracts recipes from known social-media URL shapes by
// scraping the post through a third-party provider and handing the caption
// to the free-text extractor.
package platform

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/plateful/importer/extract"
)

// instagramActorID is the Apify actor used to scrape posts and reels.
const instagramActorID = "apify~instagram-scraper"

// Post, reel, and IGTV paths all carry a shortcode segment.
var instagramPathRe = regexp.MustCompile(`^/(?:p|reel|reels|tv)/[A-Za-z0-9_-]+`)

type Instagram struct {
	apify    *ApifyClient
	freetext extract.Extractor
	logger   *slog.Logger
}

// NewInstagram builds the Instagram extractor. The free-text extractor
// receives the scraped caption as raw prose.
func NewInstagram(apify *ApifyClient, freetext extract.Extractor, logger *slog.Logger) *Instagram {
	if logger == nil {
		logger = slog.Default()
	}
	return &Instagram{apify: apify, freetext: freetext, logger: logger}
}

func (ig *Instagram) Name() string {
	return "instagram"
}

// Matches reports whether the URL is an Instagram post, reel, or IGTV link.
func (ig *Instagram) Matches(rawURL string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return false
	}

	host := strings.ToLower(u.Hostname())
	if host != "instagram.com" && !strings.HasSuffix(host, ".instagram.com") {
		return false
	}
	return instagramPathRe.MatchString(u.Path)
}

// instagramInput is the actor input for a single-post scrape.
type instagramInput struct {
	DirectURLs   []string `json:"directUrls"`
	ResultsType  string   `json:"resultsType"`
	ResultsLimit int      `json:"resultsLimit"`
}

// instagramItem is the subset of the actor's dataset item we consume.
type instagramItem struct {
	Caption    string `json:"caption"`
	DisplayURL string `json:"displayUrl"`
}

// Extract scrapes the post and runs its caption through free-text
// extraction. The post's display image is carried on the success result for
// a later best-effort download.
func (ig *Instagram) Extract(ctx context.Context, in *extract.Input) *extract.Result {
	if !ig.apify.HasToken() {
		return extract.Fail(extract.CodeApifyMissingToken, "social media import is not configured")
	}

	items, err := ig.apify.RunActorSync(ctx, instagramActorID, instagramInput{
		DirectURLs:   []string{in.SourceURL},
		ResultsType:  "posts",
		ResultsLimit: 1,
	})
	if err != nil {
		var apifyErr *Error
		if errors.As(err, &apifyErr) {
			ig.logger.Warn("Instagram scrape failed", "code", apifyErr.Code, "error", err)
			return extract.Fail(apifyErr.Code, "could not read the post")
		}
		return extract.Fail(extract.CodeApifyFailed, "could not read the post")
	}

	if len(items) == 0 {
		return extract.Fail(extract.CodeInstagramEmptyResult, "the post could not be found")
	}

	var item instagramItem
	if err := json.Unmarshal(items[0], &item); err != nil {
		return extract.Fail(extract.CodeApifyInvalidResponse, "the post could not be read")
	}
	if strings.TrimSpace(item.Caption) == "" {
		return extract.Fail(extract.CodeInstagramNoCaption, "the post has no caption to read a recipe from")
	}

	result := ig.freetext.Extract(ctx, &extract.Input{
		SourceURL: in.SourceURL,
		Text:      item.Caption,
	})
	if result.OK() && result.Attributes.CoverImageURL == "" {
		result.Attributes.CoverImageURL = item.DisplayURL
	}
	return result
}
