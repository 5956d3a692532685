// Package robots fetches and caches one robots.txt policy per scan and
// answers allow/deny and crawl-delay questions against it.
//
// Unlike the teacher's checker, which re-downloads robots.txt on every
// IsAllowed call, a Policy here is fetched and parsed exactly once (by the
// crawl coordinator, at scan start) and then shared read-only across
// workers for the scan's lifetime.
package robots

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/temoto/robotstxt"

	"github.com/rankriot/scanner/internal/logging"
)

// Policy is the parsed robots.txt for one project/scan. A nil *robotstxt
// group inside Policy means "allow all" (open policy), which is also what
// an unfetchable or unparseable robots.txt produces.
type Policy struct {
	userAgent string
	data      *robotstxt.RobotsData
	group     *robotstxt.Group
	open      bool
	rawText   string
}

// RawText returns the robots.txt body this policy was parsed from, empty
// for an open policy. Cached by the coordinator via
// Repository.UpdateProjectRobots.
func (p *Policy) RawText() string {
	return p.rawText
}

// Sitemaps returns the sitemap URLs declared in robots.txt, if any.
func (p *Policy) Sitemaps() []string {
	if p.data == nil {
		return nil
	}
	return p.data.Sitemaps
}

// IsAllowed reports whether targetURL may be fetched under this policy.
// An open policy (fetch/parse error) always allows.
func (p *Policy) IsAllowed(targetURL string) bool {
	if p.open || p.group == nil {
		return true
	}
	// Rules are path prefixes, so match against the path and query only.
	path := targetURL
	if u, err := url.Parse(targetURL); err == nil {
		path = u.RequestURI()
	}
	return p.group.Test(path)
}

// CrawlDelay returns the robots-declared crawl delay for this policy's
// agent group, if any was specified.
func (p *Policy) CrawlDelay() (time.Duration, bool) {
	if p.group == nil || p.group.CrawlDelay <= 0 {
		return 0, false
	}
	return p.group.CrawlDelay, true
}

// Fetcher is the minimal HTTP surface Fetch needs; *fetch.Client satisfies
// it without this package importing the fetch package (which would create
// an import cycle, since fetch consults robots.Policy).
type Fetcher interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetch retrieves and parses <scheme>://<host>/robots.txt for seedURL with
// a 5s timeout using userAgent. On any network, status, or parse error the
// returned Policy is open ("allow all") and is not meant to be persisted.
func Fetch(ctx context.Context, client Fetcher, seedURL, userAgent string) *Policy {
	u, err := url.Parse(seedURL)
	if err != nil {
		logging.Debug("robots: invalid seed URL", logging.Field("url", seedURL), logging.Field("error", err))
		return &Policy{userAgent: userAgent, open: true}
	}

	robotsURL := fmt.Sprintf("%s://%s/robots.txt", u.Scheme, u.Host)

	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return &Policy{userAgent: userAgent, open: true}
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		logging.Debug("robots: fetch failed, treating as open policy",
			logging.Field("url", robotsURL), logging.Field("error", err))
		return &Policy{userAgent: userAgent, open: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logging.Debug("robots: non-2xx response, treating as open policy",
			logging.Field("url", robotsURL), logging.Field("status", resp.StatusCode))
		return &Policy{userAgent: userAgent, open: true}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		logging.Debug("robots: reading body failed, treating as open policy",
			logging.Field("url", robotsURL), logging.Field("error", err))
		return &Policy{userAgent: userAgent, open: true}
	}

	data, err := robotstxt.FromBytes(body)
	if err != nil {
		logging.Debug("robots: parse failed, treating as open policy",
			logging.Field("url", robotsURL), logging.Field("error", err))
		return &Policy{userAgent: userAgent, open: true}
	}

	return &Policy{
		userAgent: userAgent,
		data:      data,
		group:     data.FindGroup(userAgent),
		rawText:   string(body),
	}
}

// Open returns a permissive policy, used when respectRobotsTxt is disabled.
func Open(userAgent string) *Policy {
	return &Policy{userAgent: userAgent, open: true}
}
