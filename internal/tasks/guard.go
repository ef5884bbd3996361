package tasks

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/multierr"

	"github.com/conneroisu/assetpipe/internal/logging"
	"github.com/conneroisu/assetpipe/internal/metrics"
)

type reportKey struct{}

// runReport collects what fault barriers swallowed during one run.
type runReport struct {
	mutex   sync.Mutex
	skipped error
}

func (r *runReport) add(err error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.skipped = multierr.Append(r.skipped, err)
}

// skippedFiles returns one error per skipped file.
func (r *runReport) skippedFiles() []error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return multierr.Errors(r.skipped)
}

func withReport(ctx context.Context, r *runReport) context.Context {
	return context.WithValue(ctx, reportKey{}, r)
}

func reportFrom(ctx context.Context) *runReport {
	r, _ := ctx.Value(reportKey{}).(*runReport)
	return r
}

// Runner applies policies, logging and metrics to tasks.
type Runner struct {
	logger   logging.Logger
	recorder metrics.Recorder
}

// NewRunner creates a runner. A nil recorder records nothing.
func NewRunner(logger logging.Logger, recorder metrics.Recorder) *Runner {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &Runner{
		logger:   logger.WithComponent("tasks"),
		recorder: recorder,
	}
}

// Guard wraps t so that its runs are timed, logged and recorded, and so that
// an AbortRun failure ends the run without failing the caller.
func (r *Runner) Guard(t Task) Task {
	return &guardedTask{task: t, runner: r}
}

// GuardAll guards every task in order.
func (r *Runner) GuardAll(ts ...Task) []Task {
	guarded := make([]Task, len(ts))
	for i, t := range ts {
		guarded[i] = r.Guard(t)
	}
	return guarded
}

type guardedTask struct {
	task   Task
	runner *Runner
}

func (g *guardedTask) Name() string   { return g.task.Name() }
func (g *guardedTask) Policy() Policy { return g.task.Policy() }

func (g *guardedTask) Run(ctx context.Context) error {
	name := g.task.Name()
	perf := g.runner.logger.StartOperation(name)
	perf.Debug(ctx, "Task started", "policy", g.task.Policy().String())

	report := &runReport{}
	err := g.task.Run(withReport(ctx, report))

	duration := perf.Elapsed()
	g.runner.recorder.ObserveTaskDuration(name, duration)

	if err == nil {
		skipped := len(report.skippedFiles())
		outcome := metrics.OutcomeSuccess
		if skipped > 0 {
			outcome = metrics.OutcomePartial
		}
		g.runner.recorder.IncTaskOutcome(name, outcome)
		perf.Info(ctx, "Task finished",
			"duration_ms", duration.Milliseconds(),
			"skipped", skipped,
		)
		return nil
	}

	if errors.Is(err, context.Canceled) {
		perf.Debug(ctx, "Task cancelled")
		return err
	}

	if g.task.Policy() == AbortRun {
		g.runner.recorder.IncTaskOutcome(name, metrics.OutcomeAborted)
		perf.EndWithError(ctx, err)
		return nil
	}

	g.runner.recorder.IncTaskOutcome(name, metrics.OutcomeFailed)
	perf.EndWithError(ctx, err)
	return err
}
