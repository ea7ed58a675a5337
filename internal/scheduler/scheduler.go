package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

var (
	// ErrUnknownJob is returned by RunNow for an unregistered job name
	ErrUnknownJob = errors.New("unknown job")
	// ErrJobRunning is returned by RunNow while another run holds the job lock
	ErrJobRunning = errors.New("job is already running")
)

// JobFunc is the body of a job. now is the trigger time in the business
// time zone.
type JobFunc func(ctx context.Context, now time.Time) error

// Job is a named task on a cron schedule
type Job struct {
	Name     string
	Schedule *Schedule
	Enabled  bool
	Run      JobFunc
}

// JobInfo describes a registered job
type JobInfo struct {
	Name     string     `json:"name"`
	Schedule string     `json:"schedule"`
	Enabled  bool       `json:"enabled"`
	NextRun  *time.Time `json:"next_run,omitempty"`
	LastRun  *time.Time `json:"last_run,omitempty"`
	LastErr  string     `json:"last_error,omitempty"`
}

// Scheduler handles periodic tasks
type Scheduler struct {
	jobs     map[string]*Job
	locker   Locker
	lockTTL  time.Duration
	location *time.Location
	now      func() time.Time

	mu      sync.Mutex
	lastRun map[string]time.Time
	lastErr map[string]string

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewScheduler creates a new scheduler
func NewScheduler(locker Locker, lockTTL time.Duration, loc *time.Location) *Scheduler {
	if locker == nil {
		locker = NewMemoryLocker()
	}
	if lockTTL <= 0 {
		lockTTL = 30 * time.Minute
	}
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		jobs:     make(map[string]*Job),
		locker:   locker,
		lockTTL:  lockTTL,
		location: loc,
		now:      time.Now,
		lastRun:  make(map[string]time.Time),
		lastErr:  make(map[string]string),
		stopChan: make(chan struct{}),
	}
}

// Register adds a job. The cron expression is parsed here so that a bad
// configuration fails at startup.
func (s *Scheduler) Register(name, cronExpr string, enabled bool, run JobFunc) error {
	sched, err := ParseCron(cronExpr)
	if err != nil {
		return fmt.Errorf("job %s: %w", name, err)
	}
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s registered twice", name)
	}
	s.jobs[name] = &Job{Name: name, Schedule: sched, Enabled: enabled, Run: run}
	return nil
}

// Start starts all enabled jobs
func (s *Scheduler) Start() {
	enabled := 0
	for _, job := range s.jobs {
		if !job.Enabled {
			slog.Info("Scheduled job disabled", "job", job.Name)
			continue
		}
		enabled++
		s.wg.Add(1)
		go s.loop(job)
	}
	slog.Info("Scheduler started", "jobs", enabled, "timezone", s.location.String())
}

// Stop stops the scheduler and waits for running jobs
func (s *Scheduler) Stop() {
	slog.Info("Stopping scheduler")
	close(s.stopChan)
	s.wg.Wait()
}

func (s *Scheduler) loop(job *Job) {
	defer s.wg.Done()

	for {
		now := s.now().In(s.location)
		next := job.Schedule.Next(now)
		if next.IsZero() {
			slog.Error("Scheduled job never matches", "job", job.Name, "schedule", job.Schedule.String())
			return
		}

		slog.Debug("Next job run scheduled", "job", job.Name, "next_run", next.Format("2006-01-02 15:04:05"))

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-timer.C:
			if _, err := s.run(context.Background(), job); err != nil && !errors.Is(err, ErrJobRunning) {
				slog.Error("Scheduled job failed", "job", job.Name, "error", err)
			}
		case <-s.stopChan:
			timer.Stop()
			return
		}
	}
}

// RunNow runs a job immediately, outside its schedule, under the same lock.
// Disabled jobs can still be run by hand.
func (s *Scheduler) RunNow(ctx context.Context, name string) (time.Duration, error) {
	job, ok := s.jobs[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.run(ctx, job)
}

// run executes one job run: it takes the job lock, recovers panics and
// records the outcome. A run skipped because the lock is held returns
// ErrJobRunning.
func (s *Scheduler) run(ctx context.Context, job *Job) (elapsed time.Duration, err error) {
	release, ok, err := s.locker.TryLock(ctx, job.Name, s.lockTTL)
	if err != nil {
		return 0, err
	}
	if !ok {
		slog.Warn("Skipping job run, previous run still active", "job", job.Name)
		return 0, ErrJobRunning
	}
	defer release()

	start := s.now()
	slog.Info("Running job", "job", job.Name)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name, r)
		}
		elapsed = s.now().Sub(start)
		s.record(job.Name, start, err)
		if err != nil {
			slog.Error("Job failed", "job", job.Name, "duration", elapsed, "error", err)
			return
		}
		slog.Info("Job completed", "job", job.Name, "duration", elapsed)
	}()

	return 0, job.Run(ctx, start.In(s.location))
}

func (s *Scheduler) record(name string, at time.Time, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRun[name] = at
	if err != nil {
		s.lastErr[name] = err.Error()
	} else {
		delete(s.lastErr, name)
	}
}

// Jobs lists the registered jobs sorted by name
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().In(s.location)
	infos := make([]JobInfo, 0, len(s.jobs))
	for _, job := range s.jobs {
		info := JobInfo{
			Name:     job.Name,
			Schedule: job.Schedule.String(),
			Enabled:  job.Enabled,
			LastErr:  s.lastErr[job.Name],
		}
		if job.Enabled {
			if next := job.Schedule.Next(now); !next.IsZero() {
				info.NextRun = &next
			}
		}
		if last, ok := s.lastRun[job.Name]; ok {
			info.LastRun = &last
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}
