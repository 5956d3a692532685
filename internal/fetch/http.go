// Package fetch retrieves one page over HTTP (C5) or, on escalation, via a
// headless browser (C6), and extracts the SEO fields and links from it.
package fetch

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"net/http/httptrace"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/PuerkitoBio/rehttp"

	"github.com/rankriot/scanner/internal/logging"
	"github.com/rankriot/scanner/internal/model"
)

// jsCountEscalationThreshold triggers a redo of the fetch via the headless
// path when the HTTP-path extraction counts more than this many <script>
// elements. Fixed policy constant, not a configured knob.
const jsCountEscalationThreshold = 5

// Result is what one fetch attempt (HTTP or headless) produces: a Page
// record plus the links discovered on it.
type Result struct {
	Page  *model.Page
	Links []model.PageLink
}

// Headless is satisfied by *HeadlessFetcher; kept as an interface so Client
// can be constructed and tested without requiring a real browser binary.
type Headless interface {
	Fetch(ctx context.Context, pageURL string) (*Result, error)
}

// Client fetches pages over plain HTTP, escalating to a Headless fetcher
// when the page's script count crosses the escalation threshold.
type Client struct {
	http      *http.Client
	userAgent string
	headless  Headless
}

// NewClient builds a Client whose transport retries transient errors via
// rehttp (adopted from codepr-webcrawler), replacing the teacher's
// hand-rolled FetchWithRetry/isRetryableError loop with an equivalent
// policy expressed as a reusable http.RoundTripper, and caps redirects at 5
// per spec rather than the teacher's 10. concurrency sizes the connection
// pool per host.
func NewClient(timeout time.Duration, userAgent string, concurrency int, headless Headless) *Client {
	if concurrency <= 0 {
		concurrency = 1
	}
	base := &http.Transport{
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: false},
		MaxIdleConnsPerHost: 4 * concurrency,
		MaxConnsPerHost:     4 * concurrency,
	}
	transport := rehttp.NewTransport(
		base,
		rehttp.RetryAll(rehttp.RetryMaxRetries(2), rehttp.RetryTemporaryErr()),
		rehttp.ExpJitterDelay(500*time.Millisecond, 5*time.Second),
	)

	return &Client{
		http: &http.Client{
			Timeout:   timeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("fetch: stopped after 5 redirects")
				}
				return nil
			},
		},
		userAgent: userAgent,
		headless:  headless,
	}
}

// Do satisfies the robots.Fetcher and sitemap.Fetcher interfaces so this
// same client can be shared for robots.txt and sitemap requests.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.http.Do(req)
}

// Fetch performs the HTTP path of §4.5, escalating to the headless fetcher
// when the page is script-heavy.
func (c *Client) Fetch(ctx context.Context, pageURL string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: building request for %s: %w", pageURL, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	var firstByte time.Duration
	start := time.Now()
	trace := &httptrace.ClientTrace{
		GotFirstResponseByte: func() {
			firstByte = time.Since(start)
		},
	}
	req = req.WithContext(httptrace.WithClientTrace(req.Context(), trace))

	resp, err := c.http.Do(req)
	loadTime := time.Since(start)
	if err != nil {
		logging.Debug("fetch: request failed", logging.Field("url", pageURL), logging.Field("error", err))
		return &Result{Page: &model.Page{URL: pageURL, LoadTimeMs: loadTime.Milliseconds()}}, nil
	}
	defer resp.Body.Close()

	page := &model.Page{
		URL:             pageURL,
		HTTPStatus:      resp.StatusCode,
		ContentType:     resp.Header.Get("Content-Type"),
		LoadTimeMs:      loadTime.Milliseconds(),
		FirstByteTimeMs: firstByte.Milliseconds(),
	}
	if resp.ContentLength >= 0 {
		cl := resp.ContentLength
		page.ContentLength = &cl
		page.SizeBytes = &cl
	}
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL := resp.Request.URL.String()
		if finalURL != pageURL {
			page.RedirectURL = finalURL
		}
	}

	if !isHTMLContentType(page.ContentType) {
		return &Result{Page: page}, nil
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetch: parsing HTML from %s: %w", pageURL, err)
	}

	e := extractFromDocument(doc, pageURL)
	applyExtracted(page, e)

	if page.JSCount > jsCountEscalationThreshold && c.headless != nil {
		logging.Debug("fetch: escalating to headless", logging.Field("url", pageURL), logging.Field("js_count", page.JSCount))
		headlessResult, err := c.headless.Fetch(ctx, pageURL)
		if err == nil && headlessResult != nil {
			return headlessResult, nil
		}
		logging.Warn("fetch: headless escalation failed, keeping HTTP result",
			logging.Field("url", pageURL), logging.Field("error", err))
	}

	return &Result{Page: page, Links: e.Links}, nil
}

func applyExtracted(page *model.Page, e extracted) {
	page.Title = e.Title
	page.H1 = e.H1
	page.H2 = e.H2
	page.H3 = e.H3
	page.MetaDescription = e.MetaDescription
	page.CanonicalURL = e.CanonicalURL
	page.HasRobotsNoindex = e.HasRobotsNoindex
	page.HasRobotsNofollow = e.HasRobotsNofollow
	page.IsIndexable = !e.HasRobotsNoindex
	page.ImageCount = e.ImageCount
	page.JSCount = e.JSCount
	page.CSSCount = e.CSSCount
	page.OpenGraph = e.OpenGraph
	page.TwitterCard = e.TwitterCard
	page.StructuredData = e.StructuredData
}
