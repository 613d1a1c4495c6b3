package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestFetcher builds a fetcher with a plain transport so tests can hit
// httptest servers on loopback. The dial screen is covered separately by
// urlguard tests; everything above the dialer is identical to NewFetcher.
func newTestFetcher(cfg Config) *Fetcher {
	cfg = cfg.withDefaults()
	return &Fetcher{
		client: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return errRedirectLimit
				}
				return nil
			},
		},
		userAgent:   cfg.UserAgent,
		maxBodySize: cfg.MaxBodySize,
	}
}

func TestFetchReturnsDocument(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "<html><body>tarte tatin</body></html>")
	}))
	defer srv.Close()

	f := newTestFetcher(Config{})
	doc, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Contains(t, string(doc.Body), "tarte tatin")
	assert.Equal(t, "text/html", doc.ContentType)
	assert.Equal(t, srv.URL, doc.FinalURL)
	assert.Equal(t, DefaultUserAgent, gotUA)
}

func TestFetchRejectsContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"recipe": "nope"}`)
	}))
	defer srv.Close()

	f := newTestFetcher(Config{})
	_, err := f.Fetch(context.Background(), srv.URL)
	fe, ok := AsError(err)
	require.True(t, ok, "expected classified fetch error, got %v", err)
	assert.Equal(t, CodeInvalidContentType, fe.Code)
}

func TestFetchEnforcesSizeCeiling(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, strings.Repeat("a", 2048))
	}))
	defer srv.Close()

	f := newTestFetcher(Config{MaxBodySize: 1024})
	_, err := f.Fetch(context.Background(), srv.URL)
	fe, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, CodeResponseTooLarge, fe.Code)
}

func TestFetchNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	f := newTestFetcher(Config{})
	_, err := f.Fetch(context.Background(), srv.URL)
	fe, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, CodeFetchFailed, fe.Code)
}

func TestFetchRedirectCap(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Redirect forever; the client must give up at the cap.
		http.Redirect(w, r, srv.URL+r.URL.Path+"x", http.StatusFound)
	}))
	defer srv.Close()

	f := newTestFetcher(Config{})
	_, err := f.Fetch(context.Background(), srv.URL)
	fe, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, CodeTooManyRedirects, fe.Code)
}

func TestFetchTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	f := newTestFetcher(Config{Timeout: 50 * time.Millisecond})
	_, err := f.Fetch(context.Background(), srv.URL)
	fe, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, CodeTimeout, fe.Code)
}

func TestFetchConnectionRefused(t *testing.T) {
	// Grab a port that is immediately closed again.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	dead := srv.URL
	srv.Close()

	f := newTestFetcher(Config{})
	_, err := f.Fetch(context.Background(), dead)
	fe, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, CodeConnectionFailed, fe.Code)
}

func TestFetchImageContentTypes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/cover.jpg":
			w.Header().Set("Content-Type", "image/jpeg")
			fmt.Fprint(w, "jpegbytes")
		default:
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, "<html></html>")
		}
	}))
	defer srv.Close()

	f := newTestFetcher(Config{})

	doc, err := f.FetchImage(context.Background(), srv.URL+"/cover.jpg")
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", doc.ContentType)

	_, err = f.FetchImage(context.Background(), srv.URL+"/page")
	fe, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, CodeInvalidContentType, fe.Code)
}
