package store

import (
	"context"
	"testing"
	"time"

	"github.com/rankriot/scanner/internal/model"
)

func TestMemoryRepositoryProjectRoundTrip(t *testing.T) {
	repo := NewMemoryRepository()
	repo.SeedProject(&model.Project{ID: "p1", URL: "https://example.test", ScanFrequency: model.FrequencyDaily})

	ctx := context.Background()
	p, err := repo.GetProject(ctx, "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.URL != "https://example.test" {
		t.Fatalf("unexpected project: %+v", p)
	}

	if _, err := repo.GetProject(ctx, "missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := repo.UpdateProjectRobots(ctx, "p1", "User-agent: *\n"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p, _ = repo.GetProject(ctx, "p1")
	if p.RobotsTxtCache != "User-agent: *\n" {
		t.Fatalf("expected robots cache to persist")
	}

	now := time.Now()
	if err := repo.UpdateProjectLastScan(ctx, "p1", now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p, _ = repo.GetProject(ctx, "p1")
	if p.LastScanAt == nil {
		t.Fatalf("expected last_scan_at to be set")
	}
}

func TestMemoryRepositoryScanProgressAndStatus(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	scan := &model.Scan{ID: "s1", ProjectID: "p1", Status: model.ScanQueued, CreatedAt: time.Now()}
	if err := repo.InsertScan(ctx, scan); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	started := time.Now()
	if err := repo.UpdateScanStatus(ctx, "s1", ScanStatusUpdate{Status: model.ScanInProgress, StartedAt: &started, ClearQueuePosition: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := repo.IncrementScanProgress(ctx, "s1", 3, 10, 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := repo.IncrementScanProgress(ctx, "s1", 1, 5, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := repo.GetScan(ctx, "s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != model.ScanInProgress {
		t.Fatalf("expected in_progress status, got %v", got.Status)
	}
	if _, err := repo.GetScan(ctx, "missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	scans, err := repo.ListQueuedScans(ctx, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(scans) != 0 {
		t.Fatalf("expected no queued scans after transition to in_progress, got %v", scans)
	}
}

func TestMemoryRepositoryPageAndLinksAndIssues(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	page := &model.Page{ProjectID: "p1", URL: "https://example.test/", Title: "Home"}
	if err := repo.UpsertPage(ctx, page); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.ID == "" {
		t.Fatalf("expected UpsertPage to assign an ID")
	}

	found, err := repo.FindPage(ctx, "p1", "https://example.test/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found == nil || found.Title != "Home" {
		t.Fatalf("expected to find the upserted page, got %+v", found)
	}

	missing, err := repo.FindPage(ctx, "p1", "https://example.test/missing")
	if err != nil || missing != nil {
		t.Fatalf("expected nil, nil for unknown page, got %+v, %v", missing, err)
	}

	links := []model.PageLink{{SourcePageID: page.ID, DestinationURL: "https://example.test/other", LinkType: model.LinkInternal}}
	if err := repo.UpsertLinks(ctx, links); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	issues := []model.Issue{{ScanID: "s1", IssueType: model.IssueMissingTitle, Severity: model.SeverityHigh}}
	if err := repo.InsertIssues(ctx, issues); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	count, err := repo.CountIssuesForScan(ctx, "s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 issue for scan s1, got %d", count)
	}
}

func TestMemoryRepositoryListProjectsByFrequency(t *testing.T) {
	repo := NewMemoryRepository()
	repo.SeedProject(&model.Project{ID: "daily1", ScanFrequency: model.FrequencyDaily})
	repo.SeedProject(&model.Project{ID: "weekly1", ScanFrequency: model.FrequencyWeekly})

	projects, err := repo.ListProjectsByFrequency(context.Background(), model.FrequencyDaily)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(projects) != 1 || projects[0].ID != "daily1" {
		t.Fatalf("expected only daily1, got %v", projects)
	}
}
