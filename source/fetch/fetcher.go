// Package fetch provides the bounded HTTP fetcher used for recipe pages and
// cover images. Every connection is screened against the urlguard address
// blocklist at dial time, so a hostname that re-resolves to an internal
// address between validation and fetch is still refused.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/plateful/importer/source/urlguard"
)

// Default transfer bounds.
const (
	DefaultConnectTimeout = 5 * time.Second
	DefaultTimeout        = 10 * time.Second
	DefaultMaxBodySize    = 5 * 1024 * 1024 // 5MiB
	DefaultUserAgent      = "plateful-importer/1.0 (+https://plateful.app/bot)"

	maxRedirects = 5
)

// pageContentTypes is the allow-list for recipe page fetches.
var pageContentTypes = map[string]bool{
	"text/html":             true,
	"application/xhtml+xml": true,
}

// Document is a fetched page. Bodies are size-bounded and discarded after
// extraction; nothing here is persisted.
type Document struct {
	Body        []byte
	ContentType string
	FinalURL    string
}

// ErrorCode classifies transport failures.
type ErrorCode string

const (
	CodeFetchFailed        ErrorCode = "fetch_failed"
	CodeInvalidContentType ErrorCode = "invalid_content_type"
	CodeResponseTooLarge   ErrorCode = "response_too_large"
	CodeTooManyRedirects   ErrorCode = "too_many_redirects"
	CodeTimeout            ErrorCode = "timeout"
	CodeConnectionFailed   ErrorCode = "connection_failed"
)

// Error is a classified transport failure.
type Error struct {
	Code  ErrorCode
	msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.msg)
}

func (e *Error) Unwrap() error {
	return e.cause
}

func newError(code ErrorCode, msg string, cause error) *Error {
	return &Error{Code: code, msg: msg, cause: cause}
}

// NewError builds a classified fetch error. Exposed for callers that stub
// fetch behavior.
func NewError(code ErrorCode, msg string) *Error {
	return newError(code, msg, nil)
}

// AsError extracts a classified fetch error, if err carries one.
func AsError(err error) (*Error, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

var errRedirectLimit = errors.New("too many redirects")

// Config bounds a Fetcher. Zero fields take the package defaults.
type Config struct {
	ConnectTimeout time.Duration
	Timeout        time.Duration
	MaxBodySize    int64
	UserAgent      string
}

func (c Config) withDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxBodySize <= 0 {
		c.MaxBodySize = DefaultMaxBodySize
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	return c
}

// Fetcher performs bounded GETs against already-validated URLs.
type Fetcher struct {
	client      *http.Client
	guard       *urlguard.Guard
	userAgent   string
	maxBodySize int64
}

// NewFetcher creates a fetcher that screens every dialed address and
// re-validates redirect targets with the given guard.
func NewFetcher(guard *urlguard.Guard, cfg Config) *Fetcher {
	cfg = cfg.withDefaults()

	dialer := &net.Dialer{
		Timeout:   cfg.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}

	// Resolve here and screen every candidate address before connecting.
	// The screened IP is what gets dialed, which closes the window between
	// urlguard's lookup and the transport's own.
	safeDialContext := func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid address: %w", err)
		}

		ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
		if err != nil {
			return nil, fmt.Errorf("DNS lookup failed: %w", err)
		}

		for _, ipAddr := range ips {
			if urlguard.IsBlockedIP(ipAddr.IP) {
				return nil, fmt.Errorf("connection to blocked address %s refused", ipAddr.IP)
			}
		}

		var lastErr error
		for _, ipAddr := range ips {
			conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ipAddr.IP.String(), port))
			if err == nil {
				return conn, nil
			}
			lastErr = err
		}

		if lastErr != nil {
			return nil, lastErr
		}
		return nil, fmt.Errorf("no addresses to dial for %s", host)
	}

	transport := &http.Transport{
		DialContext:           safeDialContext,
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ResponseHeaderTimeout: cfg.Timeout,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}

	return &Fetcher{
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return errRedirectLimit
				}
				if guard != nil {
					if v := guard.Validate(req.Context(), req.URL.String()); !v.Allowed {
						return fmt.Errorf("redirect blocked: %s", v.Reason)
					}
				}
				return nil
			},
		},
		guard:       guard,
		userAgent:   cfg.UserAgent,
		maxBodySize: cfg.MaxBodySize,
	}
}

// Fetch retrieves a recipe page. The response must be HTML within the size
// ceiling; anything else returns a classified *Error.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Document, error) {
	return f.fetch(ctx, rawURL, isPageContentType)
}

// FetchImage retrieves a cover image with the same transfer bounds but an
// image/* content-type gate. Used only for best-effort cover downloads.
func (f *Fetcher) FetchImage(ctx context.Context, rawURL string) (*Document, error) {
	return f.fetch(ctx, rawURL, isImageContentType)
}

func (f *Fetcher) fetch(ctx context.Context, rawURL string, typeAllowed func(string) bool) (*Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, newError(CodeFetchFailed, "create request", err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, newError(CodeFetchFailed, fmt.Sprintf("HTTP %d", resp.StatusCode), nil)
	}

	contentType := resp.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || !typeAllowed(mediaType) {
		return nil, newError(CodeInvalidContentType, fmt.Sprintf("content type %q not allowed", contentType), nil)
	}

	// The limit-plus-one read aborts the transfer as soon as the ceiling is
	// crossed; an oversized body never accumulates in memory.
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize+1))
	if err != nil {
		return nil, classifyTransportError(err)
	}
	if int64(len(body)) > f.maxBodySize {
		return nil, newError(CodeResponseTooLarge, fmt.Sprintf("response exceeds %d bytes", f.maxBodySize), nil)
	}

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &Document{
		Body:        body,
		ContentType: mediaType,
		FinalURL:    finalURL,
	}, nil
}

func isPageContentType(mediaType string) bool {
	return pageContentTypes[mediaType]
}

func isImageContentType(mediaType string) bool {
	return strings.HasPrefix(mediaType, "image/")
}

// classifyTransportError maps low-level client errors onto the failure
// taxonomy. Deadline and timeout conditions take precedence over the
// generic connection class.
func classifyTransportError(err error) *Error {
	if errors.Is(err, errRedirectLimit) {
		return newError(CodeTooManyRedirects, fmt.Sprintf("more than %d redirects", maxRedirects), err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return newError(CodeTimeout, "request deadline exceeded", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return newError(CodeTimeout, "request timed out", err)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return newError(CodeConnectionFailed, "connection failed", err)
	}

	return newError(CodeFetchFailed, "request failed", err)
}
