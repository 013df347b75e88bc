package callback

import (
	"context"
	"fmt"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"

	"github.com/wehubfusion/Daedalus/pkg/completion"
)

// FailureReporter captures exhausted generations in Sentry. Successful
// completions pass through untouched; failed records are reported with
// enough context to reproduce the generation.
type FailureReporter struct {
	hub    *sentry.Hub
	logger *zap.Logger
}

// NewFailureReporter creates a reporter over the given hub. A nil hub falls
// back to the current global hub.
func NewFailureReporter(hub *sentry.Hub, logger *zap.Logger) *FailureReporter {
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FailureReporter{hub: hub, logger: logger}
}

// Report captures a single failed completion
func (r *FailureReporter) Report(c *completion.Completion) {
	r.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("completion_id", c.ID.String())
		scope.SetTag("stop_reason", string(c.StopReason))
		scope.SetLevel(sentry.LevelWarning)
		scope.SetExtra("text", c.Text)
		scope.SetExtra("generated", c.Generated)
		if c.Metadata != nil {
			scope.SetExtra("metadata", c.Metadata)
		}
		r.hub.CaptureMessage(fmt.Sprintf("generation exhausted for completion %s", c.ID))
	})
	r.logger.Debug("Reported failed completion",
		zap.String("completion_id", c.ID.String()))
}

// WatchCallback adapts the reporter to the pipeline's watch stage. Only
// failed completions are captured.
func (r *FailureReporter) WatchCallback() completion.WatchCallback {
	return func(ctx context.Context, completions []*completion.Completion) error {
		for _, c := range completions {
			if c.Failed {
				r.Report(c)
			}
		}
		return nil
	}
}
