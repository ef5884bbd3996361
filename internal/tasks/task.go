// Package tasks defines the transform tasks of the asset pipeline and the
// series and parallel combinators that compose them.
//
// Every task declares a fault Policy. The policy decides what a failure
// means for the enclosing composition: AbortRun ends only the task's own
// run, SkipFile drops single files behind a fault barrier, and Propagate
// stops the rest of the sequence.
package tasks

import (
	"context"
	"fmt"

	"github.com/sourcegraph/conc/pool"
)

// Policy is a task's error-handling rule.
type Policy int

const (
	// Propagate returns the error to the enclosing composition.
	Propagate Policy = iota
	// AbortRun logs the error and ends only the current run.
	AbortRun
	// SkipFile logs and skips failing files; the batch continues.
	SkipFile
)

func (p Policy) String() string {
	switch p {
	case Propagate:
		return "propagate"
	case AbortRun:
		return "abort-run"
	case SkipFile:
		return "skip-file"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// Task is a named side-effecting operation.
type Task interface {
	Name() string
	Policy() Policy
	Run(ctx context.Context) error
}

// Notifier receives reload signals for connected browsers.
type Notifier interface {
	FullReload()
	StreamCSS(paths ...string)
}

// NopNotifier drops every signal. Used when no dev server is running.
type NopNotifier struct{}

func (NopNotifier) FullReload()        {}
func (NopNotifier) StreamCSS(...string) {}

type funcTask struct {
	name   string
	policy Policy
	fn     func(ctx context.Context) error
}

// NewFunc wraps fn as a Task.
func NewFunc(name string, policy Policy, fn func(ctx context.Context) error) Task {
	return &funcTask{name: name, policy: policy, fn: fn}
}

func (t *funcTask) Name() string                  { return t.name }
func (t *funcTask) Policy() Policy                { return t.policy }
func (t *funcTask) Run(ctx context.Context) error { return t.fn(ctx) }

type seriesTask struct {
	name  string
	tasks []Task
}

// Series runs tasks one after another. The first error stops the sequence
// and is returned.
func Series(name string, tasks ...Task) Task {
	return &seriesTask{name: name, tasks: tasks}
}

func (s *seriesTask) Name() string   { return s.name }
func (s *seriesTask) Policy() Policy { return Propagate }

func (s *seriesTask) Run(ctx context.Context) error {
	for _, t := range s.tasks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := t.Run(ctx); err != nil {
			return fmt.Errorf("%s: %w", t.Name(), err)
		}
	}
	return nil
}

type parallelTask struct {
	name  string
	tasks []Task
}

// Parallel runs tasks concurrently and waits for all of them. A failing
// task does not cancel its siblings; all errors are joined.
func Parallel(name string, tasks ...Task) Task {
	return &parallelTask{name: name, tasks: tasks}
}

func (p *parallelTask) Name() string   { return p.name }
func (p *parallelTask) Policy() Policy { return Propagate }

func (p *parallelTask) Run(ctx context.Context) error {
	group := pool.New().WithErrors().WithContext(ctx)
	for _, t := range p.tasks {
		group.Go(func(ctx context.Context) error {
			if err := t.Run(ctx); err != nil {
				return fmt.Errorf("%s: %w", t.Name(), err)
			}
			return nil
		})
	}
	return group.Wait()
}
