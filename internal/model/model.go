// Package model holds the data shapes shared across the crawl engine and
// the repository port: projects, scans, pages, snapshots, links and issues.
package model

import "time"

// ScanFrequency controls how often the scheduler fans out a project's scans.
type ScanFrequency string

const (
	FrequencyDaily   ScanFrequency = "daily"
	FrequencyWeekly  ScanFrequency = "weekly"
	FrequencyMonthly ScanFrequency = "monthly"
	FrequencyNone    ScanFrequency = "none"
)

// ProjectSettings holds per-project overrides of the crawler defaults.
type ProjectSettings struct {
	MaxPages *int `json:"max_pages,omitempty"`
}

// Project is a named target site with a seed URL.
type Project struct {
	ID                 string          `json:"id"`
	URL                string          `json:"url"`
	Name               string          `json:"name"`
	NotificationEmail  string          `json:"notification_email,omitempty"`
	ScanFrequency      ScanFrequency   `json:"scan_frequency"`
	Settings           ProjectSettings `json:"settings"`
	RobotsTxtCache     string          `json:"robots_txt_cache,omitempty"`
	LastScanAt         *time.Time      `json:"last_scan_at,omitempty"`
}

// EffectiveMaxPages returns project.settings.max_pages if present, else the
// supplied configured default.
func (p *Project) EffectiveMaxPages(configDefault int) int {
	if p.Settings.MaxPages != nil && *p.Settings.MaxPages > 0 {
		return *p.Settings.MaxPages
	}
	return configDefault
}

// ScanStatus is the lifecycle state of a Scan. The only legal transitions
// are queued -> in_progress -> {completed, failed}.
type ScanStatus string

const (
	ScanQueued     ScanStatus = "queued"
	ScanInProgress ScanStatus = "in_progress"
	ScanCompleted  ScanStatus = "completed"
	ScanFailed     ScanStatus = "failed"
)

// Scan is one traversal of a project's site.
type Scan struct {
	ID            string     `json:"id"`
	ProjectID     string     `json:"project_id"`
	Status        ScanStatus `json:"status"`
	QueuePosition *int       `json:"queue_position,omitempty"`
	PagesScanned  int        `json:"pages_scanned"`
	LinksScanned  int        `json:"links_scanned"`
	IssuesFound   int        `json:"issues_found"`
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// OpenGraph is the subset of og:* meta tags keyed without the "og:" prefix.
type OpenGraph map[string]string

// TwitterCard is the subset of twitter:* meta tags keyed without the prefix.
type TwitterCard map[string]string

// StructuredData is one parsed JSON-LD block.
type StructuredData map[string]interface{}

// Page is the latest canonical record for a URL within a project.
type Page struct {
	ID                string           `json:"id"`
	ProjectID         string           `json:"project_id"`
	URL               string           `json:"url"`
	Title             string           `json:"title"`
	H1                []string         `json:"h1s"`
	H2                []string         `json:"h2s"`
	H3                []string         `json:"h3s"`
	MetaDescription   string           `json:"meta_description"`
	CanonicalURL      string           `json:"canonical_url"`
	HTTPStatus        int              `json:"http_status"`
	ContentType       string           `json:"content_type"`
	ContentLength     *int64           `json:"content_length,omitempty"`
	IsIndexable       bool             `json:"is_indexable"`
	HasRobotsNoindex  bool             `json:"has_robots_noindex"`
	HasRobotsNofollow bool             `json:"has_robots_nofollow"`
	RedirectURL       string           `json:"redirect_url,omitempty"`
	LoadTimeMs        int64            `json:"load_time_ms"`
	FirstByteTimeMs   int64            `json:"first_byte_time_ms"`
	SizeBytes         *int64           `json:"size_bytes,omitempty"`
	ImageCount        int              `json:"image_count"`
	JSCount           int              `json:"js_count"`
	CSSCount          int              `json:"css_count"`
	OpenGraph         OpenGraph        `json:"open_graph,omitempty"`
	TwitterCard       TwitterCard      `json:"twitter_card,omitempty"`
	StructuredData    []StructuredData `json:"structured_data,omitempty"`
}

// ScanPageSnapshot is a point-in-time, append-only copy of a Page for one
// scan, with its issues embedded.
type ScanPageSnapshot struct {
	ID           string      `json:"id"`
	ScanID       string      `json:"scan_id"`
	PageID       string      `json:"page_id"`
	ProjectID    string      `json:"project_id"`
	SnapshotData Page        `json:"snapshot_data"`
	Issues       []Issue     `json:"issues"`
	CreatedAt    time.Time   `json:"created_at"`
}

// LinkType classifies a PageLink.
type LinkType string

const (
	LinkInternal LinkType = "internal"
	LinkExternal LinkType = "external"
	LinkResource LinkType = "resource"
)

// PageLink is a directed edge discovered on a page. Unique per
// (source_page_id, destination_url).
type PageLink struct {
	ID               string   `json:"id"`
	ProjectID        string   `json:"project_id"`
	SourcePageID     string   `json:"source_page_id"`
	DestinationURL   string   `json:"destination_url"`
	AnchorText       string   `json:"anchor_text,omitempty"`
	LinkType         LinkType `json:"link_type"`
	IsFollowed       bool     `json:"is_followed"`
	IsBroken         *bool    `json:"is_broken,omitempty"`
	HTTPStatus       *int     `json:"http_status,omitempty"`
	DestinationPageID string  `json:"destination_page_id,omitempty"`
}

// Severity is the impact level of an Issue.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Issue type vocabulary, bit-stable per the external contract.
const (
	IssueMissingTitle           = "missing_title"
	IssueTitleLength            = "title_length"
	IssueMissingMetaDescription = "missing_meta_description"
	IssueMetaDescriptionLength  = "meta_description_length"
	IssueMissingH1              = "missing_h1"
	IssueMultipleH1             = "multiple_h1"
	IssueNonHTMLContent         = "non_html_content"
	IssueError                  = "error"
)

// Issue is a detected SEO defect on a page at a given scan. Append-only.
type Issue struct {
	ID          string   `json:"id"`
	ProjectID   string   `json:"project_id"`
	ScanID      string   `json:"scan_id"`
	PageID      string   `json:"page_id"`
	IssueType   string   `json:"issue_type"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
	IsFixed     bool     `json:"is_fixed"`
	Details     string   `json:"details,omitempty"`
}

// QueueItem is an ephemeral crawl-queue entry.
type QueueItem struct {
	URL       string
	Depth     int
	Priority  int
	Referrer  string
	AddedAt   time.Time
}
