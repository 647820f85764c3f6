// Package scheduler runs background maintenance jobs on cron schedules.
package scheduler

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aristath/portfolio-analytics/internal/scheduler/base"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// ErrJobNotFound is returned by RunNow for an unregistered job name.
var ErrJobNotFound = errors.New("job not registered")

// Job represents a scheduled job
type Job interface {
	Run() error
	Name() string
}

// statusRecorder is implemented by jobs embedding base.JobBase.
type statusRecorder interface {
	RecordRun(start time.Time, err error)
	Status() base.Status
}

// JobInfo describes a registered job.
type JobInfo struct {
	Name     string       `json:"name"`
	Schedule string       `json:"schedule"`
	Next     time.Time    `json:"next_run"`
	Status   *base.Status `json:"status,omitempty"`
}

type entry struct {
	id       cron.EntryID
	schedule string
	job      Job
}

// Scheduler manages background jobs
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger

	mu   sync.RWMutex
	jobs map[string]entry
}

// New creates a new scheduler
func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithSeconds()),
		log:  log.With().Str("component", "scheduler").Logger(),
		jobs: make(map[string]entry),
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("Scheduler started")
}

// Stop stops the scheduler and waits for running jobs to finish
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}

// AddJob registers a new job with cron schedule (six fields, seconds first)
// Schedule examples:
//   - "0 */5 * * * *"        - Every 5 minutes
//   - "@hourly"              - Every hour
//   - "0 30 22 * * MON-FRI"  - 22:30 on weekdays
//   - "@every 30s"           - Every 30 seconds
func (s *Scheduler) AddJob(schedule string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.Name()]; exists {
		return fmt.Errorf("job %s already registered", job.Name())
	}

	id, err := s.cron.AddFunc(schedule, func() {
		s.log.Debug().Str("job", job.Name()).Msg("Running job")

		if err := s.run(job); err != nil {
			s.log.Error().
				Err(err).
				Str("job", job.Name()).
				Msg("Job failed")
		} else {
			s.log.Debug().Str("job", job.Name()).Msg("Job completed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", schedule, job.Name(), err)
	}

	s.jobs[job.Name()] = entry{id: id, schedule: schedule, job: job}

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job registered")

	return nil
}

// RunNow executes a registered job immediately (outside schedule)
func (s *Scheduler) RunNow(name string) error {
	s.mu.RLock()
	e, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}

	s.log.Info().Str("job", name).Msg("Running job immediately")
	return s.run(e.job)
}

// Jobs lists registered jobs sorted by name.
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]JobInfo, 0, len(s.jobs))
	for name, e := range s.jobs {
		info := JobInfo{
			Name:     name,
			Schedule: e.schedule,
			Next:     s.cron.Entry(e.id).Next,
		}
		if rec, ok := e.job.(statusRecorder); ok {
			st := rec.Status()
			info.Status = &st
		}
		infos = append(infos, info)
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

func (s *Scheduler) run(job Job) error {
	start := time.Now()
	err := job.Run()
	if rec, ok := job.(statusRecorder); ok {
		rec.RecordRun(start, err)
	}
	return err
}
