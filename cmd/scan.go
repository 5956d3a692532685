package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rankriot/scanner/internal/crawl"
	"github.com/rankriot/scanner/internal/lifecycle"
	"github.com/rankriot/scanner/internal/logging"
	"github.com/rankriot/scanner/internal/model"
	"github.com/rankriot/scanner/internal/notify"
	"github.com/rankriot/scanner/internal/store"
)

var scanProjectID string

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Queue and run a single scan for a project, synchronously",
	Long: `Queues a scan for --project against the configured store and blocks
until it reaches a terminal state (completed or failed), printing the
final scan summary. Intended for manual/local runs; the HTTP API and
scheduler queue scans asynchronously via the same controller.`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringVar(&scanProjectID, "project", "", "project ID to scan (required)")
	_ = scanCmd.MarkFlagRequired("project")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	repo, err := store.NewSupabaseRepository(cfg.StoreURL, cfg.StoreServiceKey)
	if err != nil {
		return fmt.Errorf("scan: opening store: %w", err)
	}

	coordinator := crawl.New(cfg, repo)
	controller := lifecycle.New(repo, coordinator, notify.New(cfg))

	queued, err := controller.QueueScan(ctx, scanProjectID)
	if err != nil {
		return fmt.Errorf("scan: queue scan for project %s: %w", scanProjectID, err)
	}
	logging.Info("scan: queued", logging.Field("scan_id", queued.ID), logging.Field("project_id", scanProjectID))

	return waitForTerminal(ctx, repo, queued.ID)
}

// waitForTerminal polls the repository until the scan reaches a terminal
// state. StartScan runs on its own goroutine inside the controller, so
// this is the CLI's way of blocking for a result the way a one-shot
// command is expected to.
func waitForTerminal(ctx context.Context, repo store.Repository, scanID string) error {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			scan, err := repo.GetScan(ctx, scanID)
			if err != nil {
				return fmt.Errorf("scan: polling scan %s: %w", scanID, err)
			}
			switch scan.Status {
			case model.ScanCompleted:
				fmt.Printf("scan %s completed: %d pages, %d links, %d issues\n",
					scan.ID, scan.PagesScanned, scan.LinksScanned, scan.IssuesFound)
				return nil
			case model.ScanFailed:
				return fmt.Errorf("scan %s failed", scan.ID)
			}
		}
	}
}
