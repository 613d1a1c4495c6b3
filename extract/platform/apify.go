package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/plateful/importer/extract"
)

const (
	defaultApifyBaseURL = "https://api.apify.com"

	// defaultRunDeadline bounds one synchronous actor run. Apify's
	// run-sync endpoint itself gives up at around 300s; scraping a single
	// post should be far quicker than that.
	defaultRunDeadline = 20 * time.Second

	// maxItemsResponse caps the dataset body read from Apify.
	maxItemsResponse = 2 * 1024 * 1024
)

// Error carries a failure code so callers can surface scrape failures
// distinctly from generic fetch failures.
type Error struct {
	Code  extract.Code
	msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.cause)
	}
	return e.msg
}

func (e *Error) Unwrap() error {
	return e.cause
}

func apifyErr(code extract.Code, msg string, cause error) *Error {
	return &Error{Code: code, msg: msg, cause: cause}
}

// ApifyConfig configures the scraping provider client.
type ApifyConfig struct {
	// Token authenticates against the Apify API. Empty disables the client.
	Token string

	// BaseURL overrides the API origin, mainly for tests.
	BaseURL string

	// RunDeadline bounds a single synchronous actor run.
	RunDeadline time.Duration

	// RequestsPerMinute throttles actor runs. Zero disables throttling.
	RequestsPerMinute int
}

// ApifyClient runs actors through Apify's run-sync-get-dataset-items
// endpoint, which executes a scrape and returns its dataset in one call.
type ApifyClient struct {
	httpClient  *http.Client
	baseURL     string
	token       string
	runDeadline time.Duration
	limiter     *rate.Limiter
}

func NewApifyClient(cfg ApifyConfig) *ApifyClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultApifyBaseURL
	}
	runDeadline := cfg.RunDeadline
	if runDeadline <= 0 {
		runDeadline = defaultRunDeadline
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), 1)
	}

	return &ApifyClient{
		httpClient:  &http.Client{Timeout: runDeadline},
		baseURL:     baseURL,
		token:       cfg.Token,
		runDeadline: runDeadline,
		limiter:     limiter,
	}
}

// HasToken reports whether the client is configured with credentials.
func (c *ApifyClient) HasToken() bool {
	return c.token != ""
}

// RunActorSync runs the named actor with the given input and returns the
// raw dataset items it produced.
func (c *ApifyClient) RunActorSync(ctx context.Context, actorID string, input any) ([]json.RawMessage, error) {
	if c.token == "" {
		return nil, apifyErr(extract.CodeApifyMissingToken, "no scraping provider token configured", nil)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, apifyErr(extract.CodeApifyTimeout, "rate limit wait aborted", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.runDeadline)
	defer cancel()

	body, err := json.Marshal(input)
	if err != nil {
		return nil, apifyErr(extract.CodeApifyFailed, "encode actor input", err)
	}

	runURL := fmt.Sprintf("%s/v2/acts/%s/run-sync-get-dataset-items?token=%s",
		c.baseURL, url.PathEscape(actorID), url.QueryEscape(c.token))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, runURL, bytes.NewReader(body))
	if err != nil {
		return nil, apifyErr(extract.CodeApifyFailed, "create actor request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyApifyTransportError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxItemsResponse))
	if err != nil {
		return nil, classifyApifyTransportError(err)
	}

	// run-sync-get-dataset-items returns 201 on success
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apifyErr(extract.CodeApifyFailed,
			fmt.Sprintf("actor run returned status %d", resp.StatusCode), nil)
	}

	var items []json.RawMessage
	if err := json.Unmarshal(respBody, &items); err != nil {
		return nil, apifyErr(extract.CodeApifyInvalidResponse, "actor run returned non-array body", err)
	}
	return items, nil
}

func classifyApifyTransportError(err error) *Error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return apifyErr(extract.CodeApifyTimeout, "actor run timed out", err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return apifyErr(extract.CodeApifyTimeout, "actor run timed out", err)
	default:
		return apifyErr(extract.CodeApifyConnectionFailed, "could not reach scraping provider", err)
	}
}
