// Package base provides base implementation for scheduler jobs.
package base

import (
	"sync"
	"time"
)

// Status is the outcome of a job's most recent run.
type Status struct {
	Runs        int           `json:"runs"`
	Failures    int           `json:"failures"`
	LastRun     time.Time     `json:"last_run,omitempty"`
	LastElapsed time.Duration `json:"last_elapsed_ns"`
	LastError   string        `json:"last_error,omitempty"`
}

// JobBase records run history. Jobs embed it so the scheduler can report
// their status without each job tracking it.
type JobBase struct {
	mu     sync.RWMutex
	status Status
}

// RecordRun stores the outcome of a run that started at start.
func (j *JobBase) RecordRun(start time.Time, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status.Runs++
	j.status.LastRun = start
	j.status.LastElapsed = time.Since(start)
	j.status.LastError = ""
	if err != nil {
		j.status.Failures++
		j.status.LastError = err.Error()
	}
}

// Status returns a snapshot of the run history.
func (j *JobBase) Status() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.status
}
