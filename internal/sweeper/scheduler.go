// Package sweeper implements the named-job scheduler (spec C12): each job
// runs on its own fixed interval until shutdown, grounded on the same
// ticker+stopCh+select shape as the teacher's
// internal/reputation/decay_scheduler.go, generalized from one hardcoded
// job to a name-keyed registry of jobs.
package sweeper

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Job is one unit of periodic work.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func()

	stopCh chan struct{}
	doneCh chan struct{}
}

// Scheduler runs a set of uniquely-named jobs, each on its own ticker.
// Registering two jobs under the same name is a fatal configuration error,
// per spec.md §4.12.
type Scheduler struct {
	mu     sync.Mutex
	jobs   map[string]*Job
	logger *slog.Logger
}

// New builds an empty Scheduler.
func New() *Scheduler {
	return &Scheduler{jobs: make(map[string]*Job), logger: slog.Default()}
}

// Register adds a named job. It panics if name is already registered —
// spec.md calls duplicate registration a fatal configuration error, not a
// recoverable one, so this mirrors that at the API boundary rather than
// returning an error a caller might ignore.
func (s *Scheduler) Register(name string, interval time.Duration, run func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		panic(fmt.Sprintf("sweeper: job %q already registered", name))
	}

	s.jobs[name] = &Job{
		Name:     name,
		Interval: interval,
		Run:      run,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches every registered job's ticker loop.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range s.jobs {
		go s.runJob(job)
	}
}

func (s *Scheduler) runJob(job *Job) {
	defer close(job.doneCh)
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.safeRun(job)
		case <-job.stopCh:
			return
		}
	}
}

// safeRun catches a panic from job.Run so one misbehaving job never takes
// down the scheduler.
func (s *Scheduler) safeRun(job *Job) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("sweeper: job panicked", "job", job.Name, "panic", r)
		}
	}()
	job.Run()
}

// Stop signals every job to stop taking new ticks and waits for in-flight
// work to finish before returning.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	jobs := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job)
	}
	s.mu.Unlock()

	for _, job := range jobs {
		close(job.stopCh)
	}
	for _, job := range jobs {
		<-job.doneCh
	}
}
