package callback

import (
	"context"
	"testing"

	"github.com/getsentry/sentry-go"

	"github.com/wehubfusion/Daedalus/pkg/completion"
)

func TestFailureReporterDefaultsToCurrentHub(t *testing.T) {
	reporter := NewFailureReporter(nil, nil)
	if reporter.hub == nil {
		t.Fatal("Expected reporter to fall back to the current hub")
	}
}

func TestFailureReporterWatchIgnoresSuccesses(t *testing.T) {
	// A hub without a client drops captures, which is enough to exercise the
	// callback path.
	hub := sentry.NewHub(nil, sentry.NewScope())
	reporter := NewFailureReporter(hub, nil)

	watch := reporter.WatchCallback()
	ok := completion.NewCompletion("in", "out", nil)
	failed := completion.NewCompletion("in", "partial", nil)
	failed.Failed = true

	if err := watch(context.Background(), []*completion.Completion{ok, failed}); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
}
