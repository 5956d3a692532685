// Package store defines the persistence port (C10) used by the crawl
// coordinator and scan lifecycle controller, plus a Postgres/PostgREST
// implementation and an in-memory fake for tests.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/rankriot/scanner/internal/model"
)

// ErrNotFound is returned by single-item lookups that find nothing.
var ErrNotFound = errors.New("store: not found")

// ScanStatusUpdate describes a partial update to a Scan's lifecycle fields.
type ScanStatusUpdate struct {
	Status             model.ScanStatus
	StartedAt          *time.Time
	CompletedAt        *time.Time
	ClearQueuePosition bool
}

// Repository is the abstract persistence port described in spec.md §4.10.
// Implementations may use any relational store; SupabaseRepository backs
// production, MemoryRepository backs tests.
type Repository interface {
	GetProject(ctx context.Context, id string) (*model.Project, error)
	UpdateProjectRobots(ctx context.Context, id, robotsTxtCache string) error
	UpdateProjectLastScan(ctx context.Context, id string, at time.Time) error

	GetScan(ctx context.Context, id string) (*model.Scan, error)
	InsertScan(ctx context.Context, scan *model.Scan) error
	UpdateScanStatus(ctx context.Context, id string, update ScanStatusUpdate) error
	IncrementScanProgress(ctx context.Context, id string, pagesScanned, linksScanned, issuesFound int) error

	FindPage(ctx context.Context, projectID, url string) (*model.Page, error)
	UpsertPage(ctx context.Context, page *model.Page) error

	InsertScanSnapshot(ctx context.Context, snapshot *model.ScanPageSnapshot) error
	UpsertLinks(ctx context.Context, links []model.PageLink) error
	InsertIssues(ctx context.Context, issues []model.Issue) error

	ListQueuedScans(ctx context.Context, limit int) ([]model.Scan, error)
	ListProjectsByFrequency(ctx context.Context, freq model.ScanFrequency) ([]model.Project, error)
	CountIssuesForScan(ctx context.Context, scanID string) (int, error)
}
