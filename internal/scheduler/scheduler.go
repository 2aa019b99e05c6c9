package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"cogmanager/pkg/trace"
)

// NextRun returns the first instant strictly after now at hh:mm local time in loc.
func NextRun(now time.Time, hh, mm int, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hh, mm, 0, 0, loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, hh, mm, 0, 0, loc)
	}
	return next
}

// Job runs Fn once a day at Hour:Minute.
type Job struct {
	Name   string
	Hour   int
	Minute int
	Fn     func(ctx context.Context) error
}

type Scheduler struct {
	jobs   []Job
	loc    *time.Location
	now    func() time.Time
	logger *zap.Logger
	wg     sync.WaitGroup
}

func New(loc *time.Location, logger *zap.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{loc: loc, now: time.Now, logger: logger}
}

func (s *Scheduler) Add(job Job) {
	s.jobs = append(s.jobs, job)
}

// Start launches one goroutine per job; they stop when ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	for _, job := range s.jobs {
		s.wg.Add(1)
		go func(job Job) {
			defer s.wg.Done()
			s.loop(ctx, job)
		}(job)
	}
}

// Wait blocks until every job loop has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	for {
		now := s.now()
		next := NextRun(now, job.Hour, job.Minute, s.loc)
		s.logger.Info("Job scheduled",
			zap.String("job", job.Name),
			zap.Time("next_run", next),
		)

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("Job stopped", zap.String("job", job.Name))
			return
		case <-timer.C:
			s.run(ctx, job)
		}
	}
}

func (s *Scheduler) run(ctx context.Context, job Job) {
	ctx = trace.WithContext(ctx, trace.GenerateTraceID())
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Job panic recovered", zap.String("job", job.Name), zap.Any("panic", r))
		}
	}()

	if err := job.Fn(ctx); err != nil {
		s.logger.Error("Job failed",
			zap.String("job", job.Name),
			zap.String("trace_id", trace.FromContext(ctx)),
			zap.Error(err),
		)
		return
	}
	s.logger.Info("Job completed",
		zap.String("job", job.Name),
		zap.String("trace_id", trace.FromContext(ctx)),
		zap.Duration("took", time.Since(start)),
	)
}
