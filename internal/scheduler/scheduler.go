// Package scheduler runs background jobs on cron schedules.
package scheduler

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job represents a scheduled job
type Job interface {
	Run() error
	Name() string
}

// JobStatus is the outcome of a job's most recent run
type JobStatus struct {
	Name      string        `json:"name"`
	Schedule  string        `json:"schedule"`
	LastRun   *time.Time    `json:"last_run,omitempty"`
	LastError string        `json:"last_error,omitempty"`
	Duration  time.Duration `json:"duration_ns"`
	Runs      int           `json:"runs"`
	Failures  int           `json:"failures"`
	NextRun   *time.Time    `json:"next_run,omitempty"`
}

type registration struct {
	id     cron.EntryID
	status JobStatus
}

// Scheduler manages background jobs
type Scheduler struct {
	cron *cron.Cron
	mu   sync.Mutex
	jobs map[string]*registration
	now  func() time.Time
	log  zerolog.Logger
}

// New creates a new scheduler. Schedules accept a leading seconds field.
func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithSeconds()),
		jobs: make(map[string]*registration),
		now:  time.Now,
		log:  log.With().Str("component", "scheduler").Logger(),
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Int("jobs", len(s.cron.Entries())).Msg("Scheduler started")
}

// Stop stops the scheduler and waits for running jobs to finish
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}

// AddJob registers a new job with cron schedule
// Schedule examples:
//   - "0 */15 * * * *"     - Every 15 minutes
//   - "@every 15m"         - Every 15 minutes from start
//   - "0 30 3 * * *"       - 03:30 daily
//   - "0 0 10 * * MON-FRI" - 10 AM weekdays
func (s *Scheduler) AddJob(schedule string, job Job) error {
	s.mu.Lock()
	if _, exists := s.jobs[job.Name()]; exists {
		s.mu.Unlock()
		return fmt.Errorf("job %s already registered", job.Name())
	}
	s.mu.Unlock()

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

	s.mu.Lock()
	s.jobs[job.Name()] = &registration{id: id, status: JobStatus{Name: job.Name(), Schedule: schedule}}
	s.mu.Unlock()

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job registered")

	return nil
}

// RunNow executes a job immediately (outside schedule)
func (s *Scheduler) RunNow(job Job) error {
	s.log.Info().Str("job", job.Name()).Msg("Running job immediately")
	return s.run(job)
}

func (s *Scheduler) run(job Job) error {
	start := s.now()
	err := job.Run()
	elapsed := s.now().Sub(start)

	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.jobs[job.Name()]
	if !ok {
		return err
	}
	reg.status.LastRun = &start
	reg.status.Duration = elapsed
	reg.status.Runs++
	reg.status.LastError = ""
	if err != nil {
		reg.status.Failures++
		reg.status.LastError = err.Error()
	}
	return err
}

// Status reports every registered job, sorted by name
func (s *Scheduler) Status() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobStatus, 0, len(s.jobs))
	for _, reg := range s.jobs {
		st := reg.status
		if next := s.cron.Entry(reg.id).Next; !next.IsZero() {
			st.NextRun = &next
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
