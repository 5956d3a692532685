// Package notify delivers scan-completion notifications behind a small
// driver interface so callers never depend on a specific delivery
// mechanism. No example repo sends email; the logging-only driver here is
// a new addition, not grounded on a pack precedent (see DESIGN.md).
package notify

import (
	"context"
	"fmt"

	"github.com/rankriot/scanner/internal/config"
	"github.com/rankriot/scanner/internal/logging"
	"github.com/rankriot/scanner/internal/model"
)

// Message is a single scan-completion notification.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Driver delivers a Message. Implementations must be safe for concurrent
// use, since the lifecycle controller may run many scans at once.
type Driver interface {
	Send(ctx context.Context, msg Message) error
}

// New selects a Driver from configuration: NoopDriver when the notifier is
// disabled, and the LoggingDriver stand-in when it is enabled. The spec defines no concrete provider wire format
// for the notifier API key, so this stays a logging driver rather than
// inventing an endpoint contract nothing in the pack grounds (see
// DESIGN.md); swapping in a real provider means implementing Driver.
func New(cfg *config.Config) Driver {
	if !cfg.NotifierEnabled {
		return NoopDriver{}
	}
	return LoggingDriver{}
}

// NoopDriver discards every message, used when notifications are disabled.
type NoopDriver struct{}

func (NoopDriver) Send(_ context.Context, _ Message) error { return nil }

// LoggingDriver logs what would have been sent. It stands in for a real
// transactional-email provider until one is wired behind Driver.
type LoggingDriver struct{}

func (LoggingDriver) Send(_ context.Context, msg Message) error {
	logging.Info("notify: scan completion notification",
		logging.Field("to", msg.To), logging.Field("subject", msg.Subject))
	return nil
}

// ScanCompletion builds the completion message for a project/scan pair.
func ScanCompletion(project *model.Project, scan *model.Scan) Message {
	return Message{
		To:      project.NotificationEmail,
		Subject: fmt.Sprintf("Scan complete for %s", project.URL),
		Body:    fmt.Sprintf("Scan %s finished with %d pages, %d issues.", scan.ID, scan.PagesScanned, scan.IssuesFound),
	}
}
