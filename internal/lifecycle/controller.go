// Package lifecycle implements the scan lifecycle controller (C9): queueing
// scans, starting them one at a time per project, and draining the
// system-wide queued backlog as capacity frees up.
package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rankriot/scanner/internal/logging"
	"github.com/rankriot/scanner/internal/model"
	"github.com/rankriot/scanner/internal/notify"
	"github.com/rankriot/scanner/internal/store"
)

// Coordinator drives one scan end to end (C8). *crawl.Coordinator is the
// production implementation; tests supply a fake so the lifecycle state
// machine can be exercised without real network I/O.
type Coordinator interface {
	Run(ctx context.Context, project *model.Project, scan *model.Scan) error
}

// Controller runs the queued -> in_progress -> {completed, failed} state
// machine. It generalizes the teacher's config-driven-constructor,
// context-cancellation Manager (internal/crawler/manager.go) into a
// long-lived supervisor that can run many projects' scans over the
// process lifetime instead of one crawl per CLI invocation.
type Controller struct {
	repo        store.Repository
	coordinator Coordinator
	notifier    notify.Driver

	mu     sync.Mutex
	active map[string]context.CancelFunc // keyed by project ID
}

// New builds a Controller. coordinator runs C8 for each started scan;
// notifier delivers the completion message spec.md §4.9 requires when a
// project has notification_email set.
func New(repo store.Repository, coordinator Coordinator, notifier notify.Driver) *Controller {
	return &Controller{
		repo:        repo,
		coordinator: coordinator,
		notifier:    notifier,
		active:      make(map[string]context.CancelFunc),
	}
}

// QueueScan verifies the project, assigns queue_position among that
// project's own ongoing scans (queued plus the one in progress, if any),
// and writes a queued Scan. If the project has no scan currently in
// progress, StartScan runs asynchronously.
func (c *Controller) QueueScan(ctx context.Context, projectID string) (*model.Scan, error) {
	project, err := c.repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: queue scan for %s: %w", projectID, err)
	}

	queued, err := c.repo.ListQueuedScans(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: listing queued scans: %w", err)
	}
	position := 0
	for _, s := range queued {
		if s.ProjectID == project.ID {
			position++
		}
	}
	if c.isActive(project.ID) {
		position++
	}

	scan := &model.Scan{
		ID:            uuid.NewString(),
		ProjectID:     project.ID,
		Status:        model.ScanQueued,
		QueuePosition: &position,
		CreatedAt:     time.Now(),
	}
	if err := c.repo.InsertScan(ctx, scan); err != nil {
		return nil, fmt.Errorf("lifecycle: inserting scan for %s: %w", projectID, err)
	}

	if !c.isActive(project.ID) {
		go c.StartScan(context.Background(), scan.ID)
	}
	return scan, nil
}

// StartScan is idempotent via the in-memory active set: if the scan's
// project already has an active scan, it returns immediately without
// touching scan's row. Otherwise it transitions queued->in_progress, runs
// C8 to completion, transitions to completed or failed, notifies on
// success when the project has notification_email set, and finally
// invokes ProcessNext to pop the oldest queued scan system-wide.
func (c *Controller) StartScan(ctx context.Context, scanID string) {
	scan, err := c.repo.GetScan(ctx, scanID)
	if err != nil {
		logging.Error("lifecycle: cannot start scan, failed to load it",
			logging.Field("scan_id", scanID), logging.Field("error", err))
		return
	}

	scanCtx, cancel, ok := c.activate(scan.ProjectID)
	if !ok {
		return
	}
	// release frees the project's active slot; it runs before ProcessNext so
	// the next queued scan of the same project can be started.
	var releaseOnce sync.Once
	release := func() {
		releaseOnce.Do(func() {
			cancel()
			c.deactivate(scan.ProjectID)
		})
	}
	defer release()

	started := time.Now()
	if err := c.repo.UpdateScanStatus(ctx, scan.ID, store.ScanStatusUpdate{
		Status:             model.ScanInProgress,
		StartedAt:          &started,
		ClearQueuePosition: true,
	}); err != nil {
		logging.Error("lifecycle: failed to mark scan in_progress",
			logging.Field("scan_id", scan.ID), logging.Field("error", err))
		return
	}
	scan.Status = model.ScanInProgress
	scan.StartedAt = &started

	project, err := c.repo.GetProject(ctx, scan.ProjectID)
	if err != nil {
		c.fail(ctx, scan, fmt.Errorf("lifecycle: loading project %s: %w", scan.ProjectID, err))
		release()
		c.ProcessNext(ctx)
		return
	}

	runErr := c.coordinator.Run(scanCtx, project, scan)
	if refreshed, err := c.repo.GetScan(ctx, scan.ID); err == nil {
		scan = refreshed
	}

	completed := time.Now()
	if runErr != nil {
		c.fail(ctx, scan, runErr)
	} else {
		if err := c.repo.UpdateScanStatus(ctx, scan.ID, store.ScanStatusUpdate{
			Status:      model.ScanCompleted,
			CompletedAt: &completed,
		}); err != nil {
			logging.Error("lifecycle: failed to mark scan completed",
				logging.Field("scan_id", scan.ID), logging.Field("error", err))
		}
		if err := c.repo.UpdateProjectLastScan(ctx, project.ID, completed); err != nil {
			logging.Error("lifecycle: failed to update project last_scan_at",
				logging.Field("project_id", project.ID), logging.Field("error", err))
		}
		if project.NotificationEmail != "" {
			if err := c.notifier.Send(ctx, notify.ScanCompletion(project, scan)); err != nil {
				logging.Warn("lifecycle: failed to send completion notification",
					logging.Field("scan_id", scan.ID), logging.Field("error", err))
			}
		}
	}

	release()
	c.ProcessNext(ctx)
}

// fail transitions scan to failed, logging the originating error.
func (c *Controller) fail(ctx context.Context, scan *model.Scan, cause error) {
	logging.Error("lifecycle: scan failed", logging.Field("scan_id", scan.ID), logging.Field("error", cause))
	completed := time.Now()
	if err := c.repo.UpdateScanStatus(ctx, scan.ID, store.ScanStatusUpdate{
		Status:      model.ScanFailed,
		CompletedAt: &completed,
	}); err != nil {
		logging.Error("lifecycle: failed to mark scan failed",
			logging.Field("scan_id", scan.ID), logging.Field("error", err))
	}
}

// ProcessNext pops the oldest queued scan across every project and starts
// it, realizing the system-wide (not per-project) backlog drain spec.md
// §4.9 describes.
func (c *Controller) ProcessNext(ctx context.Context) {
	next, err := c.repo.ListQueuedScans(ctx, 1)
	if err != nil {
		logging.Error("lifecycle: failed to list queued scans", logging.Field("error", err))
		return
	}
	if len(next) == 0 {
		return
	}
	if c.isActive(next[0].ProjectID) {
		return
	}
	go c.StartScan(context.Background(), next[0].ID)
}

// Cancel stops the active scan for projectID, if any, by cancelling its
// scan-scoped context. Workers observe this before their next queue Next()
// call and inside I/O waits, per §5.
func (c *Controller) Cancel(projectID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	cancel, ok := c.active[projectID]
	if !ok {
		return false
	}
	cancel()
	return true
}

func (c *Controller) isActive(projectID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.active[projectID]
	return ok
}

// activate registers projectID as active and returns a cancellable context
// for its scan. ok is false if the project was already active, in which
// case the caller must not proceed.
func (c *Controller) activate(projectID string) (context.Context, context.CancelFunc, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.active[projectID]; ok {
		return nil, nil, false
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.active[projectID] = cancel
	return ctx, cancel, true
}

func (c *Controller) deactivate(projectID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.active, projectID)
}
