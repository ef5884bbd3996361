// Package metrics provides observability hooks for task runs and reload
// notifications.
//
// Components receive a Recorder and default to NoopRecorder. The dev server
// swaps in a PrometheusRecorder when server.metrics is enabled, and the build
// command collects a Stats summary it prints when the build finishes.
package metrics

import "time"

// Outcome labels how a task run ended.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	// OutcomePartial means the run finished but skipped files.
	OutcomePartial Outcome = "partial"
	// OutcomeAborted means the run ended early without failing its sequence.
	OutcomeAborted Outcome = "aborted"
	OutcomeFailed  Outcome = "failed"
)

// Reload kinds.
const (
	ReloadFull = "full"
	ReloadCSS  = "css"
)

// Recorder defines the task and reload metrics hooks.
type Recorder interface {
	ObserveTaskDuration(task string, d time.Duration)
	IncTaskOutcome(task string, outcome Outcome)
	AddSkippedFiles(task string, n int)
	IncReload(kind string)
}

// NoopRecorder is a Recorder that does nothing.
type NoopRecorder struct{}

func (NoopRecorder) ObserveTaskDuration(string, time.Duration) {}
func (NoopRecorder) IncTaskOutcome(string, Outcome)            {}
func (NoopRecorder) AddSkippedFiles(string, int)               {}
func (NoopRecorder) IncReload(string)                          {}

type multiRecorder []Recorder

// Multi fans every observation out to recorders; nil entries are dropped.
func Multi(recorders ...Recorder) Recorder {
	var m multiRecorder
	for _, r := range recorders {
		if r != nil {
			m = append(m, r)
		}
	}
	if len(m) == 1 {
		return m[0]
	}
	return m
}

func (m multiRecorder) ObserveTaskDuration(task string, d time.Duration) {
	for _, r := range m {
		r.ObserveTaskDuration(task, d)
	}
}

func (m multiRecorder) IncTaskOutcome(task string, outcome Outcome) {
	for _, r := range m {
		r.IncTaskOutcome(task, outcome)
	}
}

func (m multiRecorder) AddSkippedFiles(task string, n int) {
	for _, r := range m {
		r.AddSkippedFiles(task, n)
	}
}

func (m multiRecorder) IncReload(kind string) {
	for _, r := range m {
		r.IncReload(kind)
	}
}
