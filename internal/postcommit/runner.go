package postcommit

import (
	"context"
	"fmt"
	"sync"

	"github.com/wolfman30/telehealth-scheduling/pkg/errreport"
	"github.com/wolfman30/telehealth-scheduling/pkg/logging"
)

// Runner executes post-commit tasks on background goroutines, fully
// decoupled from the caller's response path. Failures and panics are
// logged and reported, never retried, never surfaced to the original
// caller.
type Runner struct {
	logger    *logging.Logger
	reporter  errreport.Reporter
	onFailure func()
	wg        sync.WaitGroup
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithFailureObserver registers a hook invoked once per failed or
// panicked task, e.g. a metrics counter.
func WithFailureObserver(fn func()) RunnerOption {
	return func(r *Runner) { r.onFailure = fn }
}

// NewRunner creates a runner.
func NewRunner(logger *logging.Logger, reporter errreport.Reporter, opts ...RunnerOption) *Runner {
	if logger == nil {
		logger = logging.Default()
	}
	if reporter == nil {
		reporter = errreport.NewLogReporter(logger)
	}
	r := &Runner{logger: logger.Component("postcommit"), reporter: reporter}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Dispatch starts every task on its own goroutine. Tasks run against a
// fresh background context so request cancellation cannot abort them.
func (r *Runner) Dispatch(tasks []Task) {
	for _, task := range tasks {
		task := task
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			ctx := context.Background()
			defer func() {
				if rec := recover(); rec != nil {
					r.logger.Error("post-commit task panicked", "task", task.Name, "panic", rec)
					r.reporter.Report(ctx, fmt.Errorf("postcommit: task %s panicked: %v", task.Name, rec),
						map[string]string{"task": task.Name})
					r.observeFailure()
				}
			}()
			if err := task.Run(ctx); err != nil {
				r.logger.Error("post-commit task failed", "task", task.Name, "error", err)
				r.reporter.Report(ctx, err, map[string]string{"task": task.Name})
				r.observeFailure()
				return
			}
			r.logger.Debug("post-commit task completed", "task", task.Name)
		}()
	}
}

func (r *Runner) observeFailure() {
	if r.onFailure != nil {
		r.onFailure()
	}
}

// Wait blocks until all dispatched tasks finish. Used during shutdown and
// in tests.
func (r *Runner) Wait() {
	r.wg.Wait()
}
