package crawl

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rankriot/scanner/internal/config"
	"github.com/rankriot/scanner/internal/model"
	"github.com/rankriot/scanner/internal/store"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Crawler.Concurrency = 2
	cfg.Crawler.Timeout = 5 * time.Second
	cfg.Crawler.Delay = 0
	cfg.Crawler.MaxPages = 10
	cfg.Crawler.RespectRobotsTxt = true
	cfg.Crawler.UserAgent = "test-agent"
	return cfg
}

func TestRunCrawlsSiteAndPersistsPagesLinksAndIssues(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>A title long enough to pass</title>
<meta name="description" content="a meta description that is long enough to clear the fifty character floor">
</head><body><h1>Home</h1>
<a href="/page2">page2</a>
<a href="https://external.test/page">external</a>
</body></html>`))
	})
	mux.HandleFunc("/page2", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head></head><body><h1>Page Two</h1></body></html>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	repo := store.NewMemoryRepository()
	project := &model.Project{ID: "p1", URL: srv.URL, ScanFrequency: model.FrequencyNone}
	repo.SeedProject(project)

	scan := &model.Scan{ID: "s1", ProjectID: project.ID, Status: model.ScanInProgress, CreatedAt: time.Now()}
	if err := repo.InsertScan(context.Background(), scan); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	coordinator := New(testConfig(), repo)
	if err := coordinator.Run(context.Background(), project, scan); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	home, err := repo.FindPage(context.Background(), "p1", srv.URL)
	if err != nil || home == nil {
		t.Fatalf("expected home page to be stored, got %+v, %v", home, err)
	}
	if home.Title == "" {
		t.Fatalf("expected extracted title on home page")
	}

	page2, err := repo.FindPage(context.Background(), "p1", srv.URL+"/page2")
	if err != nil || page2 == nil {
		t.Fatalf("expected discovered page2 to be crawled and stored, got %+v, %v", page2, err)
	}

	count, err := repo.CountIssuesForScan(context.Background(), "s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count == 0 {
		t.Fatalf("expected at least one issue recorded (page2 is missing a title)")
	}
}

func TestRunStopsAtMaxPages(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><a href="/a">a</a><a href="/b">b</a><a href="/c">c</a></body></html>`))
	})
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body>a</body></html>`))
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body>b</body></html>`))
	})
	mux.HandleFunc("/c", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body>c</body></html>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	repo := store.NewMemoryRepository()
	project := &model.Project{ID: "p1", URL: srv.URL, ScanFrequency: model.FrequencyNone}
	repo.SeedProject(project)

	scan := &model.Scan{ID: "s1", ProjectID: project.ID, Status: model.ScanInProgress, CreatedAt: time.Now()}
	if err := repo.InsertScan(context.Background(), scan); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg := testConfig()
	cfg.Crawler.MaxPages = 2
	cfg.Crawler.Concurrency = 1

	coordinator := New(cfg, repo)
	if err := coordinator.Run(context.Background(), project, scan); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if scan.PagesScanned > cfg.Crawler.MaxPages {
		t.Fatalf("expected at most %d pages scanned, got %d", cfg.Crawler.MaxPages, scan.PagesScanned)
	}
	if scan.PagesScanned == 0 {
		t.Fatalf("expected at least one page scanned before the budget stopped the crawl")
	}
}
