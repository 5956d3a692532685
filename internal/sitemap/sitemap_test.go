package sitemap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
)

func TestDiscoverParsesURLSet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/sitemap.xml" {
			w.Header().Set("Content-Type", "application/xml")
			w.Write([]byte(`<?xml version="1.0"?>
<urlset><url><loc>http://` + r.Host + `/a?x=1&amp;y=2</loc></url><url><loc>http://` + r.Host + `/b</loc></url></urlset>`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	reader := New(srv.Client(), "test-agent")
	urls := reader.Discover(context.Background(), srv.URL+"/", nil)

	sort.Strings(urls)
	if len(urls) != 2 {
		t.Fatalf("expected 2 urls, got %v", urls)
	}
}

func TestDiscoverRecursesSitemapIndexBoundedByMax(t *testing.T) {
	hits := 0
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/sitemap.xml" {
			w.Write([]byte(`<?xml version="1.0"?>
<sitemapindex>
<sitemap><loc>` + srv.URL + `/sub1.xml</loc></sitemap>
<sitemap><loc>` + srv.URL + `/sub2.xml</loc></sitemap>
</sitemapindex>`))
			return
		}
		hits++
		w.Write([]byte(`<urlset><url><loc>` + srv.URL + `/page` + r.URL.Path + `</loc></url></urlset>`))
	}))
	defer srv.Close()

	reader := New(srv.Client(), "test-agent")
	urls := reader.Discover(context.Background(), srv.URL+"/", nil)
	if len(urls) == 0 {
		t.Fatalf("expected urls discovered from sub-sitemaps")
	}
	// The index itself plus every other document fetched must stay within the bound.
	if total := 1 + hits; total > DefaultMaxSitemapsToProcess {
		t.Fatalf("expected at most %d sitemap documents fetched, got %d", DefaultMaxSitemapsToProcess, total)
	}
}

func TestDiscoverIncludesRobotsDeclaredSitemaps(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sitemap.xml", "/sitemap_index.xml", "/sitemap-index.xml", "/wp-sitemap.xml":
			w.WriteHeader(http.StatusNotFound)
		case "/custom-sitemap.xml":
			w.Write([]byte(`<urlset><url><loc>` + srv2URL(r) + `/c</loc></url></urlset>`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	reader := New(srv.Client(), "test-agent")
	urls := reader.Discover(context.Background(), srv.URL+"/", []string{srv.URL + "/custom-sitemap.xml"})
	if len(urls) != 1 {
		t.Fatalf("expected 1 url from robots-declared sitemap, got %v", urls)
	}
}

func TestDiscoverSkipsGzippedSuffix(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	reader := New(srv.Client(), "test-agent")
	urls := reader.Discover(context.Background(), srv.URL+"/", []string{srv.URL + "/sitemap.xml.gz"})
	if len(urls) != 0 {
		t.Fatalf("expected gzipped sitemap to be skipped, got %v", urls)
	}
}

func srv2URL(r *http.Request) string {
	return "http://" + r.Host
}
