// Package schedule runs recurring jobs on a single executor goroutine.
//
// Every tick of every job, and every function passed to Do, runs on the same
// goroutine, one at a time. Code running on the executor can therefore cancel
// jobs and mutate shared state without further locking, and a job cancelled
// from the executor never runs another tick.
package schedule

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// ErrStopped is returned by Do once Run has returned.
var ErrStopped = errors.New("scheduler stopped")

// Scheduler owns the executor goroutine and the set of registered jobs.
type Scheduler struct {
	work chan func()
	done chan struct{}

	mu   sync.Mutex
	jobs map[*Job]struct{}
}

// New returns a scheduler. Nothing executes until Run is called.
func New() *Scheduler {
	return &Scheduler{
		work: make(chan func()),
		done: make(chan struct{}),
		jobs: make(map[*Job]struct{}),
	}
}

// Run executes queued ticks and functions until ctx is canceled, then cancels
// every remaining job.
func (s *Scheduler) Run(ctx context.Context) {
	defer close(s.done)
	slog.Info("scheduler started", slog.String("component", "schedule"))
	for {
		select {
		case <-ctx.Done():
			for _, j := range s.snapshot() {
				j.Cancel()
			}
			slog.Info("scheduler stopped", slog.String("component", "schedule"))
			return
		case fn := <-s.work:
			fn()
		}
	}
}

// Do runs fn on the executor and waits for it to return. It must not be
// called from the executor itself.
func (s *Scheduler) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	task := func() {
		defer close(finished)
		fn()
	}
	select {
	case s.work <- task:
	case <-s.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	<-finished
	return nil
}

// Every registers a job that ticks immediately and then once per interval.
// Ticks that arrive while the executor is busy are dropped, not queued.
func (s *Scheduler) Every(name string, interval time.Duration, fn func(ctx context.Context)) *Job {
	ctx, cancel := context.WithCancel(context.Background())
	j := &Job{
		s:        s,
		name:     name,
		interval: interval,
		fn:       fn,
		ctx:      ctx,
		cancel:   cancel,
	}
	s.mu.Lock()
	s.jobs[j] = struct{}{}
	s.mu.Unlock()
	go j.loop()
	return j
}

// Jobs returns the names of registered, uncancelled jobs.
func (s *Scheduler) Jobs() []string {
	jobs := s.snapshot()
	names := make([]string, 0, len(jobs))
	for _, j := range jobs {
		names = append(names, j.name)
	}
	sort.Strings(names)
	return names
}

func (s *Scheduler) snapshot() []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Job, 0, len(s.jobs))
	for j := range s.jobs {
		out = append(out, j)
	}
	return out
}

func (s *Scheduler) remove(j *Job) {
	s.mu.Lock()
	delete(s.jobs, j)
	s.mu.Unlock()
}

// Job is a recurring registration on a Scheduler.
type Job struct {
	s        *Scheduler
	name     string
	interval time.Duration
	fn       func(ctx context.Context)

	ctx       context.Context
	cancel    context.CancelFunc
	cancelled atomic.Bool
}

// Name returns the name the job was registered with.
func (j *Job) Name() string { return j.name }

// Cancel deregisters the job and aborts its in-flight request context. When
// called on the executor, no further tick of this job will start.
func (j *Job) Cancel() {
	if j.cancelled.Swap(true) {
		return
	}
	j.cancel()
	j.s.remove(j)
}

// Cancelled reports whether Cancel has been called.
func (j *Job) Cancelled() bool { return j.cancelled.Load() }

func (j *Job) loop() {
	j.enqueue()
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-j.ctx.Done():
			return
		case <-ticker.C:
			j.enqueue()
		}
	}
}

func (j *Job) enqueue() {
	select {
	case j.s.work <- j.run:
	case <-j.ctx.Done():
	case <-j.s.done:
	}
}

func (j *Job) run() {
	if j.cancelled.Load() {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("job tick panicked", slog.String("job", j.name), slog.Any("panic", r), slog.String("component", "schedule"))
		}
	}()
	j.fn(j.ctx)
}
