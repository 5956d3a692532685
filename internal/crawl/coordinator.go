// Package crawl implements the crawl coordinator (C8): it drives one scan
// from seed to drained queue, generalizing the teacher's
// internal/crawler/manager.go Manager.Crawl/worker loop (prime queue,
// launch N workers, each fetches/parses/stores/requeues, drain) onto the
// full component pipeline (C1-C7, C10) this system wires together.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rankriot/scanner/internal/canon"
	"github.com/rankriot/scanner/internal/config"
	"github.com/rankriot/scanner/internal/fetch"
	"github.com/rankriot/scanner/internal/issues"
	"github.com/rankriot/scanner/internal/logging"
	"github.com/rankriot/scanner/internal/model"
	"github.com/rankriot/scanner/internal/queue"
	"github.com/rankriot/scanner/internal/robots"
	"github.com/rankriot/scanner/internal/sitemap"
	"github.com/rankriot/scanner/internal/store"
)

// sitemapURLPriority is the dispatch priority given to URLs discovered
// through a sitemap rather than through the seed or link discovery.
const sitemapURLPriority = 80

// Coordinator drives one scan end to end. It owns no scan-lifecycle state
// (queued/in_progress/completed/failed transitions are the lifecycle
// controller's job, C9) and no scheduling state (C11); it only crawls.
type Coordinator struct {
	repo    store.Repository
	fetcher *fetch.Client

	userAgent        string
	concurrency      int
	defaultDelay     time.Duration
	defaultMaxPages  int
	respectRobotsTxt bool
}

// New builds a Coordinator from the process configuration, wiring a single
// fetch.Client (shared HTTP transport and headless escalation path) that
// is also reused for robots.txt and sitemap fetches.
func New(cfg *config.Config, repo store.Repository) *Coordinator {
	headless := fetch.NewHeadlessFetcher(cfg.Crawler.UserAgent)
	client := fetch.NewClient(cfg.Crawler.Timeout, cfg.Crawler.UserAgent, cfg.Crawler.Concurrency, headless)

	return &Coordinator{
		repo:             repo,
		fetcher:          client,
		userAgent:        cfg.Crawler.UserAgent,
		concurrency:      cfg.Crawler.Concurrency,
		defaultDelay:     cfg.Crawler.Delay,
		defaultMaxPages:  cfg.Crawler.MaxPages,
		respectRobotsTxt: cfg.Crawler.RespectRobotsTxt,
	}
}

// Run crawls project starting from its seed URL for the given scan,
// blocking until the queue drains or ctx is cancelled. It does not
// transition scan.Status; the caller (the lifecycle controller) marks the
// scan completed or failed based on the returned error.
func (c *Coordinator) Run(ctx context.Context, project *model.Project, scan *model.Scan) error {
	policy := c.resolveRobotsPolicy(ctx, project)

	q := queue.New(c.defaultDelay, func(_ string) time.Duration {
		if delay, ok := policy.CrawlDelay(); ok {
			return delay
		}
		return 0
	})

	seed, valid := canon.CanonicalizeOrInput(project.URL, "")
	if !valid {
		return fmt.Errorf("crawl: project %s has an invalid seed URL %q", project.ID, project.URL)
	}
	q.Add(model.QueueItem{URL: seed, Depth: 0, Priority: queue.SeedPriority})

	sitemapReader := sitemap.New(c.fetcher, c.userAgent)
	for _, u := range sitemapReader.Discover(ctx, seed, policy.Sitemaps()) {
		q.Add(model.QueueItem{URL: u, Depth: 0, Priority: sitemapURLPriority})
	}

	maxPages := project.EffectiveMaxPages(c.defaultMaxPages)
	var pagesScanned atomic.Int64

	group, gctx := errgroup.WithContext(ctx)
	for i := 0; i < c.concurrency; i++ {
		group.Go(func() error {
			return c.worker(gctx, q, project, scan, policy, maxPages, &pagesScanned)
		})
	}
	err := group.Wait()
	scan.PagesScanned = int(pagesScanned.Load())
	return err
}

// resolveRobotsPolicy fetches robots.txt once for the scan and stores its
// raw text on the project (robots_txt_cache); the scan itself uses only the
// in-memory policy and nothing reads the stored text back. A fetch/parse
// failure yields an open policy that is not stored, matching robots.Fetch's
// own contract.
func (c *Coordinator) resolveRobotsPolicy(ctx context.Context, project *model.Project) *robots.Policy {
	if !c.respectRobotsTxt {
		return robots.Open(c.userAgent)
	}

	policy := robots.Fetch(ctx, c.fetcher, project.URL, c.userAgent)
	if raw := policy.RawText(); raw != "" {
		if err := c.repo.UpdateProjectRobots(ctx, project.ID, raw); err != nil {
			logging.Warn("crawl: failed to cache robots.txt",
				logging.Field("project_id", project.ID), logging.Field("error", err))
		}
	}
	return policy
}

// worker pulls items off q until it is drained or the budget is spent. It
// never returns an error for a single page's failure: those are logged and
// the worker moves on, matching the teacher's tolerant-of-individual-page-
// failures crawl loop. It only returns an error when context cancellation
// (propagated by errgroup) aborts the loop entirely.
func (c *Coordinator) worker(ctx context.Context, q *queue.Queue, project *model.Project, scan *model.Scan, policy *robots.Policy, maxPages int, pagesScanned *atomic.Int64) error {
	for {
		item, err := q.Next(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrQueueDrained) {
				return nil
			}
			return err
		}

		if pagesScanned.Add(1) > int64(maxPages) {
			pagesScanned.Add(-1)
			q.Pause()
			q.Done(item.URL)
			continue
		}

		if !policy.IsAllowed(item.URL) {
			pagesScanned.Add(-1)
			logging.Debug("crawl: skipping disallowed URL", logging.Field("url", item.URL))
			q.Done(item.URL)
			continue
		}

		if err := c.processItem(ctx, item, project, scan, q); err != nil {
			pagesScanned.Add(-1)
			logging.Warn("crawl: failed to process page",
				logging.Field("url", item.URL), logging.Field("error", err))
		}
		q.Done(item.URL)
	}
}

// processItem fetches one URL and persists everything it produces in the
// fixed order the resource model requires: UpsertPage, then
// InsertScanSnapshot, then UpsertLinks, then InsertIssues, then
// IncrementScanProgress. An error at any step aborts that page's
// persistence without advancing scan.PagesScanned, leaving the scan's
// counters consistent with what was actually committed.
func (c *Coordinator) processItem(ctx context.Context, item model.QueueItem, project *model.Project, scan *model.Scan, q *queue.Queue) error {
	result, err := c.fetcher.Fetch(ctx, item.URL)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", item.URL, err)
	}

	page := result.Page
	page.ProjectID = project.ID

	if existing, err := c.repo.FindPage(ctx, project.ID, page.URL); err == nil && existing != nil {
		page.ID = existing.ID
	} else {
		page.ID = uuid.NewString()
	}

	if err := c.repo.UpsertPage(ctx, page); err != nil {
		return fmt.Errorf("upserting page %s: %w", item.URL, err)
	}

	pageIssues := issues.Analyze(page)
	for i := range pageIssues {
		pageIssues[i].ID = uuid.NewString()
		pageIssues[i].ScanID = scan.ID
	}

	snapshot := &model.ScanPageSnapshot{
		ID:           uuid.NewString(),
		ScanID:       scan.ID,
		PageID:       page.ID,
		ProjectID:    project.ID,
		SnapshotData: *page,
		Issues:       pageIssues,
		CreatedAt:    time.Now(),
	}
	if err := c.repo.InsertScanSnapshot(ctx, snapshot); err != nil {
		return fmt.Errorf("inserting scan snapshot for %s: %w", item.URL, err)
	}

	for i := range result.Links {
		result.Links[i].ID = uuid.NewString()
		result.Links[i].ProjectID = project.ID
		result.Links[i].SourcePageID = page.ID
	}
	if len(result.Links) > 0 {
		if err := c.repo.UpsertLinks(ctx, result.Links); err != nil {
			return fmt.Errorf("upserting links for %s: %w", item.URL, err)
		}
	}

	if len(pageIssues) > 0 {
		if err := c.repo.InsertIssues(ctx, pageIssues); err != nil {
			return fmt.Errorf("inserting issues for %s: %w", item.URL, err)
		}
	}

	if err := c.repo.IncrementScanProgress(ctx, scan.ID, 1, len(result.Links), len(pageIssues)); err != nil {
		return fmt.Errorf("incrementing scan progress for %s: %w", item.URL, err)
	}

	for _, link := range result.Links {
		if link.LinkType != model.LinkInternal {
			continue
		}
		q.Add(model.QueueItem{
			URL:      link.DestinationURL,
			Depth:    item.Depth + 1,
			Priority: queue.DiscoveredPriority(item.Depth + 1),
			Referrer: item.URL,
		})
	}

	return nil
}
