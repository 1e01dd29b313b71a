package extract

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// DefaultFetchTimeout bounds one page fetch.
const DefaultFetchTimeout = 30 * time.Second

// DefaultMaxPageBytes caps how much of a page body is read.
const DefaultMaxPageBytes = 5 << 20

const userAgent = "Mozilla/5.0 (compatible; vizon/1.0; +https://github.com/spektr-org/vizon)"

// Page is a fetched HTML document.
type Page struct {
	URL         string
	ContentType string
	Body        []byte
}

// Fetcher retrieves a page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Page, error)
}

// ── HTTP ───────────────────────────────────────────────────

// HTTPFetcher fetches pages with a plain GET.
type HTTPFetcher struct {
	client   *http.Client
	maxBytes int64
}

// NewHTTPFetcher creates a fetcher. A non-positive timeout uses
// DefaultFetchTimeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &HTTPFetcher{
		client:   &http.Client{Timeout: timeout},
		maxBytes: DefaultMaxPageBytes,
	}
}

// Fetch performs the GET and reads at most maxBytes of the body.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, err
	}
	return &Page{URL: resp.Request.URL.String(), ContentType: resp.Header.Get("Content-Type"), Body: body}, nil
}

// ── headless browser ───────────────────────────────────────

// RodFetcher renders pages in headless Chrome, for tables built by script.
// Each Fetch launches and tears down its own browser.
type RodFetcher struct {
	timeout time.Duration
	logger  *zap.Logger
}

// NewRodFetcher creates a browser-backed fetcher.
func NewRodFetcher(timeout time.Duration, logger *zap.Logger) *RodFetcher {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RodFetcher{timeout: timeout, logger: logger}
}

// Fetch navigates to url, waits for load and returns the rendered DOM.
func (f *RodFetcher) Fetch(ctx context.Context, url string) (*Page, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	l := launcher.New().Context(ctx).Headless(true)
	wsURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("browser: launch: %w", err)
	}
	defer l.Kill()

	b := rod.New().ControlURL(wsURL).Context(ctx)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	defer b.Close()

	page, err := b.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return nil, fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		f.logger.Warn("browser: wait load", zap.String("url", url), zap.Error(err))
	}

	html, err := page.HTML()
	if err != nil {
		return nil, fmt.Errorf("browser: get DOM: %w", err)
	}
	if len(html) > DefaultMaxPageBytes {
		html = html[:DefaultMaxPageBytes]
	}
	return &Page{URL: url, ContentType: "text/html", Body: []byte(html)}, nil
}
