package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/dtnitsch/region-maps/pkg/caching"
)

// ErrStalled is the cancellation cause when a download body stops delivering data.
var ErrStalled = errors.New("download stalled")

// StatusError is returned when the server answers with a non-success status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unable to fetch %s, status code %d", e.URL, e.StatusCode)
}

type Fetcher struct {
	client    *http.Client // listing pages
	downloads *http.Client // extracts; no overall deadline
	timeout   time.Duration
	userAgent string
	cache     *caching.ListingCache
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithTimeout bounds listing requests end to end. Downloads use it for
// connection setup, response headers and the longest gap between body reads,
// so a large extract may take as long as it needs while it keeps streaming.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		f.timeout = d
		f.client.Timeout = d
	}
}

// WithUserAgent sets the User-Agent header on every request.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		f.userAgent = ua
	}
}

// WithListingCache serves listing pages from cache when fresh.
func WithListingCache(c *caching.ListingCache) Option {
	return func(f *Fetcher) {
		f.cache = c
	}
}

// WithHTTPClient replaces the underlying client for listings and downloads.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		if c != nil {
			f.client = c
			f.downloads = c
		}
	}
}

func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		client: &http.Client{},
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.downloads == nil {
		f.downloads = newDownloadClient(f.timeout)
	}
	return f
}

func newDownloadClient(timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if timeout > 0 {
		dialer := &net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}
		transport.DialContext = dialer.DialContext
		transport.TLSHandshakeTimeout = timeout
		transport.ResponseHeaderTimeout = timeout
	}
	return &http.Client{Transport: transport}
}

// GetHtml fetches a listing page and parses it as a UTF-8 HTML document.
func (f *Fetcher) GetHtml(ctx context.Context, url string) (*goquery.Document, error) {
	bodyBytes, err := f.GetHtmlBytes(ctx, url)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, nil
}

// GetHtmlBytes returns the raw listing page, consulting the listing cache first.
func (f *Fetcher) GetHtmlBytes(ctx context.Context, url string) ([]byte, error) {
	if f.cache != nil {
		if data, ok := f.cache.Get(url); ok {
			return data, nil
		}
	}

	resp, err := f.get(ctx, f.client, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if f.cache != nil {
		// A failed cache write only costs a refetch next time.
		_ = f.cache.Set(url, bodyBytes)
	}
	return bodyBytes, nil
}

// Download streams url into dest and returns the number of bytes written.
// The body goes to dest+".part" first and is renamed only after the transfer
// completes, so dest never holds a partial or error-page body. The transfer
// is aborted with ErrStalled when no data arrives for the configured timeout.
func (f *Fetcher) Download(ctx context.Context, url, dest string) (int64, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	resp, err := f.get(ctx, f.downloads, url)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var body io.Reader = resp.Body
	if f.timeout > 0 {
		idle := time.AfterFunc(f.timeout, func() {
			cancel(fmt.Errorf("%w: no data for %s", ErrStalled, f.timeout))
		})
		defer idle.Stop()
		body = &idleReader{r: resp.Body, timer: idle, timeout: f.timeout}
	}

	tmp := dest + ".part"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", tmp, err)
	}

	written, copyErr := io.Copy(out, body)
	if copyErr != nil {
		if cause := context.Cause(ctx); errors.Is(cause, ErrStalled) {
			copyErr = cause
		}
	} else {
		copyErr = out.Sync()
	}
	closeErr := out.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(tmp)
		if copyErr != nil {
			return 0, fmt.Errorf("failed to stream %s: %w", url, copyErr)
		}
		return 0, fmt.Errorf("failed to close %s: %w", tmp, closeErr)
	}

	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("failed to move download into place: %w", err)
	}
	return written, nil
}

// idleReader pushes the stall deadline back whenever the body yields data.
type idleReader struct {
	r       io.Reader
	timer   *time.Timer
	timeout time.Duration
}

func (r *idleReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		r.timer.Reset(r.timeout)
	}
	return n, err
}

func (f *Fetcher) get(ctx context.Context, client *http.Client, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make HTTP request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}
	return resp, nil
}
