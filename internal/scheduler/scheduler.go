// Package scheduler runs store maintenance jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/anda-ren/starwhale/internal/metrics"
	"github.com/anda-ren/starwhale/pkg/schema"
)

const defaultInterval = 30 * time.Second

// Job is a named task run whenever its cron spec comes due.
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context) error
}

// JobStatus reports the state of a scheduled job.
type JobStatus struct {
	Name    string    `json:"name"`
	Spec    string    `json:"spec"`
	NextRun time.Time `json:"next_run"`
	LastRun time.Time `json:"last_run,omitzero"`
	LastErr string    `json:"last_error,omitempty"`
}

type entry struct {
	job      Job
	schedule cron.Schedule
	next     time.Time
	lastRun  time.Time
	lastErr  error
}

// Scheduler checks its jobs on a fixed interval and runs those that are due.
type Scheduler struct {
	parser   cron.Parser
	logger   *slog.Logger
	now      func() time.Time
	interval time.Duration

	mu      sync.Mutex
	entries []*entry
	cancel  context.CancelFunc
	done    chan struct{}

	inflightMu sync.Mutex
	inflight   map[string]struct{}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the scheduler logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithInterval sets how often due jobs are checked.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// NewScheduler creates a Scheduler with no jobs.
func NewScheduler(opts ...Option) *Scheduler {
	s := &Scheduler{
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		logger:   slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})),
		now:      func() time.Time { return time.Now().UTC() },
		interval: defaultInterval,
		inflight: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add schedules job. Names must be unique and the spec must parse.
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" || job.Run == nil {
		return schema.NewError(schema.ErrCodeValidation, "scheduled job needs a name and a run function")
	}
	schedule, err := s.parser.Parse(job.Spec)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "job %q: invalid cron spec %q", job.Name, job.Spec).WithCause(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.job.Name == job.Name {
			return schema.NewErrorf(schema.ErrCodeConflict, "job %q already scheduled", job.Name)
		}
	}
	s.entries = append(s.entries, &entry{job: job, schedule: schedule, next: schedule.Next(s.now())})
	return nil
}

// CalculateNextRun computes the next run time for a cron spec.
func (s *Scheduler) CalculateNextRun(spec string, from time.Time) (time.Time, error) {
	schedule, err := s.parser.Parse(spec)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", spec, err)
	}
	return schedule.Next(from), nil
}

// Start launches the background loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}
	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	jobs := len(s.entries)
	s.mu.Unlock()

	go s.loop(schedCtx)
	s.logger.Info("scheduler started", slog.Int("jobs", jobs))
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs every job whose next run is not after now.
func (s *Scheduler) tick(ctx context.Context) {
	now := s.now()

	s.mu.Lock()
	var due []*entry
	for _, e := range s.entries {
		if !e.next.After(now) {
			due = append(due, e)
		}
	}
	s.mu.Unlock()

	for _, e := range due {
		if !s.tryAcquire(e.job.Name) {
			continue
		}
		s.runEntry(ctx, e, now)
		s.release(e.job.Name)
	}
}

func (s *Scheduler) runEntry(ctx context.Context, e *entry, now time.Time) {
	s.logger.Debug("running scheduled job", slog.String("job", e.job.Name))
	start := time.Now()
	err := e.job.Run(ctx)

	status := "success"
	if err != nil {
		status = "error"
		s.logger.Error("scheduled job failed",
			slog.String("job", e.job.Name),
			slog.String("error", err.Error()))
	} else {
		s.logger.Info("scheduled job finished",
			slog.String("job", e.job.Name),
			slog.Duration("took", time.Since(start)))
	}
	metrics.MaintenanceRun(e.job.Name, status)

	s.mu.Lock()
	e.lastRun = now
	e.lastErr = err
	e.next = e.schedule.Next(now)
	s.mu.Unlock()
}

// RunNow runs the named job immediately, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	var target *entry
	for _, e := range s.entries {
		if e.job.Name == name {
			target = e
			break
		}
	}
	s.mu.Unlock()

	if target == nil {
		return schema.NewErrorf(schema.ErrCodeNotFound, "job %q not scheduled", name)
	}
	if !s.tryAcquire(name) {
		return schema.NewErrorf(schema.ErrCodeConflict, "job %q is already running", name)
	}
	defer s.release(name)

	s.runEntry(ctx, target, s.now())
	s.mu.Lock()
	defer s.mu.Unlock()
	return target.lastErr
}

// Status returns the state of every job in the order they were added.
func (s *Scheduler) Status() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobStatus, len(s.entries))
	for i, e := range s.entries {
		out[i] = JobStatus{Name: e.job.Name, Spec: e.job.Spec, NextRun: e.next, LastRun: e.lastRun}
		if e.lastErr != nil {
			out[i].LastErr = e.lastErr.Error()
		}
	}
	return out
}

func (s *Scheduler) tryAcquire(name string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, ok := s.inflight[name]; ok {
		return false
	}
	s.inflight[name] = struct{}{}
	return true
}

func (s *Scheduler) release(name string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, name)
}

// Stop cancels the loop and waits for it to exit.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	s.logger.Info("scheduler stopped")
	return nil
}
