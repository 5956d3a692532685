// Package sitemap extracts URLs from sitemap index / leaf XML documents,
// generalizing the teacher's single-path sitemap.xml fetch into the
// well-known-path-plus-robots-declared discovery the full system needs.
package sitemap

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/rankriot/scanner/internal/canon"
	"github.com/rankriot/scanner/internal/logging"
)

// DefaultMaxSitemapsToProcess bounds sitemap-index recursion.
const DefaultMaxSitemapsToProcess = 5

// wellKnownPaths are tried, in order, against the seed host.
var wellKnownPaths = []string{
	"/sitemap.xml",
	"/sitemap_index.xml",
	"/sitemap-index.xml",
	"/wp-sitemap.xml",
}

type sitemapIndex struct {
	XMLName  xml.Name      `xml:"sitemapindex"`
	Sitemaps []sitemapEntry `xml:"sitemap"`
}

type sitemapEntry struct {
	Loc string `xml:"loc"`
}

type urlSet struct {
	XMLName xml.Name   `xml:"urlset"`
	URLs    []urlEntry `xml:"url"`
}

type urlEntry struct {
	Loc string `xml:"loc"`
}

// Fetcher is the minimal HTTP surface Discover/parseDocument need.
type Fetcher interface {
	Do(req *http.Request) (*http.Response, error)
}

// Reader fetches and parses sitemap documents for one seed site.
type Reader struct {
	client        Fetcher
	userAgent     string
	maxSitemaps   int
	processed     int
}

// New creates a Reader with the default recursion bound.
func New(client Fetcher, userAgent string) *Reader {
	return &Reader{client: client, userAgent: userAgent, maxSitemaps: DefaultMaxSitemapsToProcess}
}

// Discover tries the well-known sitemap paths for seedURL plus any
// robotsSitemaps declared in robots.txt, returning the union of URLs found.
// Fetch errors are swallowed per component contract: the seed still
// proceeds even if every sitemap attempt fails.
func (r *Reader) Discover(ctx context.Context, seedURL string, robotsSitemaps []string) []string {
	r.processed = 0

	u, err := url.Parse(seedURL)
	if err != nil {
		return nil
	}

	candidates := make([]string, 0, len(wellKnownPaths)+len(robotsSitemaps))
	for _, p := range wellKnownPaths {
		candidates = append(candidates, fmt.Sprintf("%s://%s%s", u.Scheme, u.Host, p))
	}
	candidates = append(candidates, robotsSitemaps...)

	seen := make(map[string]struct{})
	var found []string
	for _, c := range candidates {
		urls, err := r.parseSitemap(ctx, c)
		if err != nil {
			logging.Debug("sitemap: fetch/parse failed, skipping",
				logging.Field("url", c), logging.Field("error", err))
			continue
		}
		for _, u := range urls {
			if _, ok := seen[u]; ok {
				continue
			}
			seen[u] = struct{}{}
			found = append(found, u)
		}
	}
	return found
}

// parseSitemap fetches one sitemap document and extracts its URLs,
// recursing into sitemap-index entries up to maxSitemaps total documents.
func (r *Reader) parseSitemap(ctx context.Context, sitemapURL string) ([]string, error) {
	if r.processed >= r.maxSitemaps {
		return nil, nil
	}
	r.processed++

	if isGzipped(sitemapURL) {
		logging.Debug("sitemap: skipping gzipped document", logging.Field("url", sitemapURL))
		return nil, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sitemapURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("sitemap: %s returned HTTP %d", sitemapURL, resp.StatusCode)
	}

	if isGzipContentType(resp.Header.Get("Content-Type")) {
		logging.Debug("sitemap: skipping gzipped content-type", logging.Field("url", sitemapURL))
		return nil, nil
	}

	var body strings.Builder
	buf := make([]byte, 32*1024)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			body.Write(buf[:n])
		}
		if rerr != nil {
			break
		}
	}
	data := []byte(body.String())

	var index sitemapIndex
	if err := xml.Unmarshal(data, &index); err == nil && len(index.Sitemaps) > 0 {
		var urls []string
		for _, s := range index.Sitemaps {
			sub, err := r.parseSitemap(ctx, strings.TrimSpace(s.Loc))
			if err != nil {
				logging.Debug("sitemap: sub-sitemap failed", logging.Field("url", s.Loc), logging.Field("error", err))
				continue
			}
			urls = append(urls, sub...)
		}
		return urls, nil
	}

	var set urlSet
	if err := xml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("sitemap: failed to parse XML from %s: %w", sitemapURL, err)
	}

	urls := make([]string, 0, len(set.URLs))
	for _, entry := range set.URLs {
		normalized, err := canon.Canonicalize(strings.TrimSpace(entry.Loc), "")
		if err != nil {
			logging.Debug("sitemap: invalid URL entry", logging.Field("url", entry.Loc))
			continue
		}
		urls = append(urls, normalized)
	}
	return urls, nil
}

func isGzipped(rawURL string) bool {
	return strings.HasSuffix(strings.ToLower(rawURL), ".gz")
}

func isGzipContentType(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "gzip") || strings.Contains(ct, "x-gzip")
}
