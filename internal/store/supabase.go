package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/supabase-community/supabase-go"

	"github.com/rankriot/scanner/internal/model"
)

// batchSize mirrors the teacher's internal/api/handlers.go batching
// discipline: Supabase accepts up to 1000 rows per insert.
const batchSize = 1000

// SupabaseRepository is a Repository backed by Postgres via PostgREST,
// generalizing the teacher's internal/api/server.go client construction
// (service-role key, bypassing RLS for worker-initiated writes) and
// internal/api/handlers.go's batch-insert discipline into the full C10
// contract.
type SupabaseRepository struct {
	client *supabase.Client

	progressMu sync.Mutex // serializes IncrementScanProgress read-modify-write
}

// NewSupabaseRepository constructs a repository using the service-role key
// so crawl workers can write regardless of row-level security policies.
func NewSupabaseRepository(storeURL, serviceKey string) (*SupabaseRepository, error) {
	client, err := supabase.NewClient(storeURL, serviceKey, nil)
	if err != nil {
		return nil, fmt.Errorf("store: creating supabase client: %w", err)
	}
	return &SupabaseRepository{client: client}, nil
}

func (r *SupabaseRepository) GetProject(_ context.Context, id string) (*model.Project, error) {
	data, _, err := r.client.From("projects").Select("*", "", false).Eq("id", id).Single().Execute()
	if err != nil {
		return nil, fmt.Errorf("store: get project %s: %w", id, err)
	}
	var p model.Project
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("store: decode project %s: %w", id, err)
	}
	return &p, nil
}

func (r *SupabaseRepository) UpdateProjectRobots(_ context.Context, id, robotsTxtCache string) error {
	values := map[string]interface{}{"robots_txt_cache": robotsTxtCache}
	_, _, err := r.client.From("projects").Update(values, "", "").Eq("id", id).Execute()
	if err != nil {
		return fmt.Errorf("store: update project robots cache %s: %w", id, err)
	}
	return nil
}

func (r *SupabaseRepository) UpdateProjectLastScan(_ context.Context, id string, at time.Time) error {
	values := map[string]interface{}{"last_scan_at": at.UTC().Format(time.RFC3339)}
	_, _, err := r.client.From("projects").Update(values, "", "").Eq("id", id).Execute()
	if err != nil {
		return fmt.Errorf("store: update project last_scan_at %s: %w", id, err)
	}
	return nil
}

func (r *SupabaseRepository) GetScan(_ context.Context, id string) (*model.Scan, error) {
	data, _, err := r.client.From("scans").Select("*", "", false).Eq("id", id).Single().Execute()
	if err != nil {
		return nil, fmt.Errorf("store: get scan %s: %w", id, err)
	}
	var s model.Scan
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("store: decode scan %s: %w", id, err)
	}
	return &s, nil
}

func (r *SupabaseRepository) InsertScan(_ context.Context, scan *model.Scan) error {
	_, _, err := r.client.From("scans").Insert(scan, false, "", "", "").Execute()
	if err != nil {
		return fmt.Errorf("store: insert scan %s: %w", scan.ID, err)
	}
	return nil
}

func (r *SupabaseRepository) UpdateScanStatus(_ context.Context, id string, update ScanStatusUpdate) error {
	values := map[string]interface{}{"status": string(update.Status)}
	if update.StartedAt != nil {
		values["started_at"] = update.StartedAt.UTC().Format(time.RFC3339)
	}
	if update.CompletedAt != nil {
		values["completed_at"] = update.CompletedAt.UTC().Format(time.RFC3339)
	}
	if update.ClearQueuePosition {
		values["queue_position"] = nil
	}
	_, _, err := r.client.From("scans").Update(values, "", "").Eq("id", id).Execute()
	if err != nil {
		return fmt.Errorf("store: update scan status %s: %w", id, err)
	}
	return nil
}

// IncrementScanProgress reads then writes the counters rather than issuing
// an atomic SQL increment: PostgREST has no increment verb and the example
// pack has no RPC-wrapper precedent to ground one on (see DESIGN.md). C9
// enforces a single active scan per project, so no two scans write the same
// row; the concurrent workers of one scan are serialized by progressMu, so
// this process never loses an update between the read and the write.
func (r *SupabaseRepository) IncrementScanProgress(ctx context.Context, id string, pagesScanned, linksScanned, issuesFound int) error {
	r.progressMu.Lock()
	defer r.progressMu.Unlock()

	data, _, err := r.client.From("scans").Select("pages_scanned,links_scanned,issues_found", "", false).Eq("id", id).Single().Execute()
	if err != nil {
		return fmt.Errorf("store: read scan progress %s: %w", id, err)
	}
	var current struct {
		PagesScanned int `json:"pages_scanned"`
		LinksScanned int `json:"links_scanned"`
		IssuesFound  int `json:"issues_found"`
	}
	if err := json.Unmarshal(data, &current); err != nil {
		return fmt.Errorf("store: decode scan progress %s: %w", id, err)
	}

	values := map[string]interface{}{
		"pages_scanned": current.PagesScanned + pagesScanned,
		"links_scanned": current.LinksScanned + linksScanned,
		"issues_found":  current.IssuesFound + issuesFound,
	}
	_, _, err = r.client.From("scans").Update(values, "", "").Eq("id", id).Execute()
	if err != nil {
		return fmt.Errorf("store: increment scan progress %s: %w", id, err)
	}
	return nil
}

func (r *SupabaseRepository) FindPage(_ context.Context, projectID, url string) (*model.Page, error) {
	data, _, err := r.client.From("pages").Select("*", "", false).
		Eq("project_id", projectID).Eq("url", url).Single().Execute()
	if err != nil {
		return nil, nil
	}
	var p model.Page
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("store: decode page %s/%s: %w", projectID, url, err)
	}
	return &p, nil
}

func (r *SupabaseRepository) UpsertPage(_ context.Context, page *model.Page) error {
	data, _, err := r.client.From("pages").Insert(page, true, "project_id,url", "representation", "").Execute()
	if err != nil {
		return fmt.Errorf("store: upsert page %s: %w", page.URL, err)
	}
	var rows []model.Page
	if err := json.Unmarshal(data, &rows); err != nil {
		return fmt.Errorf("store: decode upserted page %s: %w", page.URL, err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("store: upsert page %s: no row returned", page.URL)
	}
	page.ID = rows[0].ID
	return nil
}

func (r *SupabaseRepository) InsertScanSnapshot(_ context.Context, snapshot *model.ScanPageSnapshot) error {
	_, _, err := r.client.From("scan_page_snapshots").Insert(snapshot, false, "", "", "").Execute()
	if err != nil {
		return fmt.Errorf("store: insert scan snapshot %s: %w", snapshot.PageID, err)
	}
	return nil
}

func (r *SupabaseRepository) UpsertLinks(_ context.Context, links []model.PageLink) error {
	return batched(links, func(batch []model.PageLink) error {
		_, _, err := r.client.From("page_links").Insert(batch, true, "source_page_id,destination_url", "", "").Execute()
		return err
	})
}

func (r *SupabaseRepository) InsertIssues(_ context.Context, issues []model.Issue) error {
	return batched(issues, func(batch []model.Issue) error {
		_, _, err := r.client.From("issues").Insert(batch, false, "", "", "").Execute()
		return err
	})
}

func (r *SupabaseRepository) ListQueuedScans(_ context.Context, limit int) ([]model.Scan, error) {
	data, _, err := r.client.From("scans").Select("*", "", false).
		Eq("status", string(model.ScanQueued)).Order("created_at", nil).Limit(limit, "").Execute()
	if err != nil {
		return nil, fmt.Errorf("store: list queued scans: %w", err)
	}
	var scans []model.Scan
	if err := json.Unmarshal(data, &scans); err != nil {
		return nil, fmt.Errorf("store: decode queued scans: %w", err)
	}
	return scans, nil
}

func (r *SupabaseRepository) ListProjectsByFrequency(_ context.Context, freq model.ScanFrequency) ([]model.Project, error) {
	data, _, err := r.client.From("projects").Select("*", "", false).Eq("scan_frequency", string(freq)).Execute()
	if err != nil {
		return nil, fmt.Errorf("store: list projects by frequency %s: %w", freq, err)
	}
	var projects []model.Project
	if err := json.Unmarshal(data, &projects); err != nil {
		return nil, fmt.Errorf("store: decode projects by frequency %s: %w", freq, err)
	}
	return projects, nil
}

func (r *SupabaseRepository) CountIssuesForScan(_ context.Context, scanID string) (int, error) {
	_, count, err := r.client.From("issues").Select("id", "exact", true).Eq("scan_id", scanID).Execute()
	if err != nil {
		return 0, fmt.Errorf("store: count issues for scan %s: %w", scanID, err)
	}
	return int(count), nil
}

func batched[T any](items []T, insert func([]T) error) error {
	for i := 0; i < len(items); i += batchSize {
		end := i + batchSize
		if end > len(items) {
			end = len(items)
		}
		if err := insert(items[i:end]); err != nil {
			return fmt.Errorf("store: batch insert rows %d-%d: %w", i, end, err)
		}
	}
	return nil
}
