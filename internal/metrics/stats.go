package metrics

import (
	"sort"
	"sync"
	"time"
)

// TaskStats summarizes the runs of one task.
type TaskStats struct {
	Task          string
	Runs          int64
	Failed        int64
	Skipped       int64
	TotalDuration time.Duration
}

// AverageDuration returns the mean run duration.
func (ts TaskStats) AverageDuration() time.Duration {
	if ts.Runs == 0 {
		return 0
	}
	return ts.TotalDuration / time.Duration(ts.Runs)
}

// Stats is an in-memory Recorder used to print a summary after a build.
type Stats struct {
	tasks   map[string]*TaskStats
	reloads map[string]int64
	mutex   sync.RWMutex
}

// NewStats creates an empty Stats recorder.
func NewStats() *Stats {
	return &Stats{
		tasks:   make(map[string]*TaskStats),
		reloads: make(map[string]int64),
	}
}

func (s *Stats) task(name string) *TaskStats {
	ts, ok := s.tasks[name]
	if !ok {
		ts = &TaskStats{Task: name}
		s.tasks[name] = ts
	}
	return ts
}

func (s *Stats) ObserveTaskDuration(task string, d time.Duration) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.task(task).TotalDuration += d
}

func (s *Stats) IncTaskOutcome(task string, outcome Outcome) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	ts := s.task(task)
	ts.Runs++
	if outcome == OutcomeFailed || outcome == OutcomeAborted {
		ts.Failed++
	}
}

func (s *Stats) AddSkippedFiles(task string, n int) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.task(task).Skipped += int64(n)
}

func (s *Stats) IncReload(kind string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.reloads[kind]++
}

// Snapshot returns a copy of the per-task stats sorted by task name.
func (s *Stats) Snapshot() []TaskStats {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	out := make([]TaskStats, 0, len(s.tasks))
	for _, ts := range s.tasks {
		out = append(out, *ts)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Task < out[j].Task })
	return out
}

// Reloads returns how many reloads of kind were recorded.
func (s *Stats) Reloads(kind string) int64 {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.reloads[kind]
}

// Reset clears all recorded values.
func (s *Stats) Reset() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.tasks = make(map[string]*TaskStats)
	s.reloads = make(map[string]int64)
}
