package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rankriot/scanner/internal/model"
)

func TestFetchExtractsSEOFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><head>
<title>  My Page Title  </title>
<meta name="description" content="a description">
<link rel="canonical" href="/canonical-page">
<meta name="robots" content="noindex, nofollow">
<meta property="og:title" content="OG Title">
<meta name="twitter:card" content="summary">
</head><body>
<h1>Heading One</h1>
<a href="/internal-link">internal</a>
<a href="https://external.test/page" rel="nofollow">external</a>
<img src="/img.png">
</body></html>`))
	}))
	defer srv.Close()

	client := NewClient(5*time.Second, "test-agent", 1, nil)
	result, err := client.Fetch(context.Background(), srv.URL+"/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p := result.Page
	if p.Title != "My Page Title" {
		t.Fatalf("expected trimmed title, got %q", p.Title)
	}
	if p.MetaDescription != "a description" {
		t.Fatalf("unexpected meta description: %q", p.MetaDescription)
	}
	if !p.HasRobotsNoindex || !p.HasRobotsNofollow {
		t.Fatalf("expected noindex/nofollow to be detected")
	}
	if p.IsIndexable {
		t.Fatalf("expected is_indexable=false when noindex present")
	}
	if len(p.H1) != 1 || p.H1[0] != "Heading One" {
		t.Fatalf("unexpected h1s: %v", p.H1)
	}
	if p.OpenGraph["title"] != "OG Title" {
		t.Fatalf("expected og:title extraction, got %v", p.OpenGraph)
	}
	if p.TwitterCard["card"] != "summary" {
		t.Fatalf("expected twitter:card extraction, got %v", p.TwitterCard)
	}
	if p.ImageCount != 1 {
		t.Fatalf("expected image_count 1, got %d", p.ImageCount)
	}

	var internal, external, resource int
	for _, l := range result.Links {
		switch l.LinkType {
		case model.LinkInternal:
			internal++
		case model.LinkExternal:
			external++
			if l.IsFollowed {
				t.Fatalf("expected external nofollow link to be is_followed=false")
			}
		case model.LinkResource:
			resource++
		}
	}
	if internal != 1 || external != 1 || resource != 1 {
		t.Fatalf("expected 1 internal, 1 external, 1 resource link, got internal=%d external=%d resource=%d", internal, external, resource)
	}
}

func TestFetchNonHTMLContentTypeSkipsExtraction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4 fake"))
	}))
	defer srv.Close()

	client := NewClient(5*time.Second, "test-agent", 1, nil)
	result, err := client.Fetch(context.Background(), srv.URL+"/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Page.Title != "" || len(result.Links) != 0 {
		t.Fatalf("expected no extraction for non-HTML content")
	}
	if result.Page.ImageCount != 0 {
		t.Fatalf("expected image_count 0 for non-HTML content")
	}
}

func TestFetchRecordsRedirectURL(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/old" {
			http.Redirect(w, r, srv.URL+"/new", http.StatusMovedPermanently)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><head><title>t</title></head><body></body></html>"))
	}))
	defer srv.Close()

	client := NewClient(5*time.Second, "test-agent", 1, nil)
	result, err := client.Fetch(context.Background(), srv.URL+"/old")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Page.RedirectURL != srv.URL+"/new" {
		t.Fatalf("expected redirect_url to be final URL, got %q", result.Page.RedirectURL)
	}
}

type stubHeadless struct {
	called bool
	result *Result
}

func (s *stubHeadless) Fetch(ctx context.Context, pageURL string) (*Result, error) {
	s.called = true
	return s.result, nil
}

func TestFetchEscalatesToHeadlessWhenJSCountExceedsThreshold(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		body := "<html><head><title>t</title>"
		for i := 0; i < jsCountEscalationThreshold+1; i++ {
			body += `<script src="/s.js"></script>`
		}
		body += "</head><body></body></html>"
		w.Write([]byte(body))
	}))
	defer srv.Close()

	stub := &stubHeadless{result: &Result{Page: &model.Page{URL: srv.URL + "/", Title: "from headless"}}}
	client := NewClient(5*time.Second, "test-agent", 1, stub)

	result, err := client.Fetch(context.Background(), srv.URL+"/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !stub.called {
		t.Fatalf("expected escalation to headless fetcher")
	}
	if result.Page.Title != "from headless" {
		t.Fatalf("expected headless result to replace HTTP result, got %q", result.Page.Title)
	}
}

func TestFetchNetworkErrorProducesZeroStatusPage(t *testing.T) {
	client := NewClient(1*time.Second, "test-agent", 1, nil)
	result, err := client.Fetch(context.Background(), "http://127.0.0.1:1")
	if err != nil {
		t.Fatalf("fetch-level network errors should not be returned as Go errors: %v", err)
	}
	if result.Page.HTTPStatus != 0 {
		t.Fatalf("expected HTTPStatus 0 for network failure, got %d", result.Page.HTTPStatus)
	}
}
