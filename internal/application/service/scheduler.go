package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// Job 定时任务：固定间隔触发，同一任务的两次运行不会重叠
type Job struct {
	Name       string
	Interval   time.Duration
	RunAtStart bool
	Fn         func(ctx context.Context)

	running atomic.Bool
}

// TryRun executes the job unless a previous run of the same job is still
// in flight. A panic inside Fn is recovered and logged at the tick
// boundary so the next tick is unaffected.
func (j *Job) TryRun(ctx context.Context) bool {
	if !j.running.CompareAndSwap(false, true) {
		log.Warn().Str("job", j.Name).Msg("previous run still in progress, tick skipped")
		return false
	}
	defer j.running.Store(false)
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("job", j.Name).Interface("panic", r).Msg("job panicked")
		}
	}()

	j.Fn(ctx)
	return true
}

// Scheduler 持有一组相互独立的定时任务
// Each job gets its own goroutine and ticker; there is no lock shared
// across jobs, so one slow job never delays another.
type Scheduler struct {
	jobs []*Job
	wg   sync.WaitGroup
}

func NewScheduler() *Scheduler {
	return &Scheduler{}
}

func (s *Scheduler) Add(job *Job) {
	s.jobs = append(s.jobs, job)
}

// Start launches all registered jobs and returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	for _, job := range s.jobs {
		s.wg.Add(1)
		go s.runJob(ctx, job)
		log.Info().
			Str("job", job.Name).
			Dur("interval", job.Interval).
			Bool("run_at_start", job.RunAtStart).
			Msg("job scheduled")
	}
}

// Wait blocks until all job loops have exited (after ctx cancellation).
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) runJob(ctx context.Context, job *Job) {
	defer s.wg.Done()

	if job.RunAtStart {
		job.TryRun(ctx)
	}

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job.TryRun(ctx)
		}
	}
}
