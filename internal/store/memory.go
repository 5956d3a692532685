package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rankriot/scanner/internal/model"
)

// MemoryRepository is an in-memory Repository used by unit tests, the way
// the teacher's own tests construct fixtures directly in Go rather than
// against a live Postgres instance.
type MemoryRepository struct {
	mu sync.Mutex

	projects map[string]*model.Project
	scans    map[string]*model.Scan
	pages    map[string]*model.Page // key: projectID + "|" + url
	links    map[string]model.PageLink
	issues   []model.Issue
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		projects: make(map[string]*model.Project),
		scans:    make(map[string]*model.Scan),
		pages:    make(map[string]*model.Page),
		links:    make(map[string]model.PageLink),
	}
}

// SeedProject installs a project fixture, used by tests.
func (m *MemoryRepository) SeedProject(p *model.Project) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects[p.ID] = p
}

func pageKey(projectID, url string) string { return projectID + "|" + url }

func (m *MemoryRepository) GetProject(_ context.Context, id string) (*model.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *p
	return &copied, nil
}

func (m *MemoryRepository) UpdateProjectRobots(_ context.Context, id, robotsTxtCache string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return ErrNotFound
	}
	p.RobotsTxtCache = robotsTxtCache
	return nil
}

func (m *MemoryRepository) UpdateProjectLastScan(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return ErrNotFound
	}
	t := at
	p.LastScanAt = &t
	return nil
}

func (m *MemoryRepository) GetScan(_ context.Context, id string) (*model.Scan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.scans[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *s
	return &copied, nil
}

func (m *MemoryRepository) InsertScan(_ context.Context, scan *model.Scan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *scan
	m.scans[scan.ID] = &copied
	return nil
}

func (m *MemoryRepository) UpdateScanStatus(_ context.Context, id string, update ScanStatusUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.scans[id]
	if !ok {
		return ErrNotFound
	}
	s.Status = update.Status
	if update.StartedAt != nil {
		s.StartedAt = update.StartedAt
	}
	if update.CompletedAt != nil {
		s.CompletedAt = update.CompletedAt
	}
	if update.ClearQueuePosition {
		s.QueuePosition = nil
	}
	return nil
}

func (m *MemoryRepository) IncrementScanProgress(_ context.Context, id string, pagesScanned, linksScanned, issuesFound int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.scans[id]
	if !ok {
		return ErrNotFound
	}
	s.PagesScanned += pagesScanned
	s.LinksScanned += linksScanned
	s.IssuesFound += issuesFound
	return nil
}

func (m *MemoryRepository) FindPage(_ context.Context, projectID, url string) (*model.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pages[pageKey(projectID, url)]
	if !ok {
		return nil, nil
	}
	copied := *p
	return &copied, nil
}

func (m *MemoryRepository) UpsertPage(_ context.Context, page *model.Page) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if page.ID == "" {
		page.ID = fmt.Sprintf("page-%d", len(m.pages)+1)
	}
	copied := *page
	m.pages[pageKey(page.ProjectID, page.URL)] = &copied
	return nil
}

func (m *MemoryRepository) InsertScanSnapshot(_ context.Context, snapshot *model.ScanPageSnapshot) error {
	return nil
}

func (m *MemoryRepository) UpsertLinks(_ context.Context, links []model.PageLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range links {
		key := l.SourcePageID + "|" + l.DestinationURL
		m.links[key] = l
	}
	return nil
}

func (m *MemoryRepository) InsertIssues(_ context.Context, issues []model.Issue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.issues = append(m.issues, issues...)
	return nil
}

func (m *MemoryRepository) ListQueuedScans(_ context.Context, limit int) ([]model.Scan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Scan
	for _, s := range m.scans {
		if s.Status == model.ScanQueued {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryRepository) ListProjectsByFrequency(_ context.Context, freq model.ScanFrequency) ([]model.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Project
	for _, p := range m.projects {
		if p.ScanFrequency == freq {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *MemoryRepository) CountIssuesForScan(_ context.Context, scanID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, i := range m.issues {
		if i.ScanID == scanID {
			count++
		}
	}
	return count, nil
}
