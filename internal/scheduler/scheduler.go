// Package scheduler implements the cron-driven scan fan-out (C11): three
// recurring ticks (daily/weekly/monthly) that each list the projects due
// at that frequency and queue a scan per project, generalizing the
// robfig/cron/v3 construct-AddFunc-Start shape seen in the pack's worker
// schedulers (e.g. folio's cmd/worker) onto spec.md §4.11's three fixed
// frequencies.
package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/rankriot/scanner/internal/config"
	"github.com/rankriot/scanner/internal/logging"
	"github.com/rankriot/scanner/internal/model"
	"github.com/rankriot/scanner/internal/store"
)

// QueueScanner is the subset of the lifecycle controller the scheduler
// needs: queueing a scan for a project by ID.
type QueueScanner interface {
	QueueScan(ctx context.Context, projectID string) (*model.Scan, error)
}

// Scheduler registers and runs the three scan-frequency cron jobs.
type Scheduler struct {
	repo       store.Repository
	controller QueueScanner
	cron       *cron.Cron
}

// New builds a Scheduler wired to repo for listing due projects and
// controller for queueing their scans. Call Start to register jobs and
// begin ticking; call Stop to drain in-flight ticks on shutdown.
func New(repo store.Repository, controller QueueScanner) *Scheduler {
	return &Scheduler{
		repo:       repo,
		controller: controller,
		cron:       cron.New(),
	}
}

// Start registers the daily/weekly/monthly jobs from cfg.ScanFrequencies
// and starts the underlying cron runner. It returns an error if any cron
// expression fails to parse, per §6's "reject unrecognized/malformed
// config" requirement.
func (s *Scheduler) Start(cfg *config.ScanFrequencies) error {
	if err := s.register(cfg.Daily, model.FrequencyDaily); err != nil {
		return err
	}
	if err := s.register(cfg.Weekly, model.FrequencyWeekly); err != nil {
		return err
	}
	if err := s.register(cfg.Monthly, model.FrequencyMonthly); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the cron runner, waiting for any running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) register(expr string, freq model.ScanFrequency) error {
	_, err := s.cron.AddFunc(expr, func() { s.tick(freq) })
	if err != nil {
		return fmt.Errorf("scheduler: invalid cron expression for %s (%q): %w", freq, expr, err)
	}
	return nil
}

// tick lists every project due at freq and queues a scan for each,
// isolating and logging per-project errors so one bad project never
// blocks the rest of the fan-out.
func (s *Scheduler) tick(freq model.ScanFrequency) {
	ctx := context.Background()
	projects, err := s.repo.ListProjectsByFrequency(ctx, freq)
	if err != nil {
		logging.Error("scheduler: failed to list projects", logging.Field("frequency", freq), logging.Field("error", err))
		return
	}
	logging.Info("scheduler: tick", logging.Field("frequency", freq), logging.Field("project_count", len(projects)))
	for _, project := range projects {
		if _, err := s.controller.QueueScan(ctx, project.ID); err != nil {
			logging.Error("scheduler: failed to queue scan",
				logging.Field("project_id", project.ID), logging.Field("frequency", freq), logging.Field("error", err))
		}
	}
}
