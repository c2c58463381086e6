// Package errreport forwards background failures to an error-tracking
// collaborator. Post-commit tasks report here instead of surfacing errors
// to the original caller.
package errreport

import (
	"context"

	"github.com/wolfman30/telehealth-scheduling/pkg/logging"
)

// Reporter receives errors from best-effort background work.
type Reporter interface {
	Report(ctx context.Context, err error, tags map[string]string)
}

// LogReporter writes reported errors to the structured log.
type LogReporter struct {
	logger *logging.Logger
}

// NewLogReporter creates a reporter backed by the application logger.
func NewLogReporter(logger *logging.Logger) *LogReporter {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogReporter{logger: logger}
}

// Report logs the error with its tags as structured fields.
func (r *LogReporter) Report(ctx context.Context, err error, tags map[string]string) {
	if err == nil {
		return
	}
	args := make([]any, 0, 2+2*len(tags))
	args = append(args, "error", err)
	for k, v := range tags {
		args = append(args, k, v)
	}
	r.logger.Error("background task failed", args...)
}

// Noop discards all reports. Used in tests.
type Noop struct{}

func (Noop) Report(ctx context.Context, err error, tags map[string]string) {}

var (
	_ Reporter = (*LogReporter)(nil)
	_ Reporter = Noop{}
)
