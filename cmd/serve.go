package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rankriot/scanner/internal/api"
	"github.com/rankriot/scanner/internal/crawl"
	"github.com/rankriot/scanner/internal/lifecycle"
	"github.com/rankriot/scanner/internal/logging"
	"github.com/rankriot/scanner/internal/notify"
	"github.com/rankriot/scanner/internal/scheduler"
	"github.com/rankriot/scanner/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the cron scheduler",
	Long: `Boots the thin HTTP API (POST /api/scans, GET /api/scans/:id, GET
/health) alongside the cron scheduler that fans out scheduled scans per
project frequency, and blocks until interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	repo, err := store.NewSupabaseRepository(cfg.StoreURL, cfg.StoreServiceKey)
	if err != nil {
		return fmt.Errorf("serve: opening store: %w", err)
	}

	coordinator := crawl.New(cfg, repo)
	controller := lifecycle.New(repo, coordinator, notify.New(cfg))

	sched := scheduler.New(repo, controller)
	if err := sched.Start(&cfg.ScanFrequencies); err != nil {
		return fmt.Errorf("serve: starting scheduler: %w", err)
	}
	defer sched.Stop()

	server := api.NewServer(controller, repo)
	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: server.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("serve: listening", logging.Field("port", cfg.Port))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: http server: %w", err)
	case <-sigCh:
		logging.Info("serve: shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(ctx)
}
