// Package scheduler runs the full scan and the retention sweep on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"orphanscan/internal/logger"
)

// Task is one scheduled unit of work.
type Task func(ctx context.Context) error

// job adapts a Task to cron.Job, giving every run its own run id.
type job struct {
	ctx     context.Context
	kind    string
	timeout time.Duration
	task    Task
}

func (j job) Run() {
	ctx := logger.WithRun(j.ctx, j.kind)
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}
	start := time.Now()
	logger.Infof(ctx, "Starting %s job", j.kind)
	if err := j.task(ctx); err != nil {
		logger.Errorf(ctx, "%s job failed after %v: %v", j.kind, time.Since(start), err)
		return
	}
	logger.Infof(ctx, "%s job finished in %v", j.kind, time.Since(start))
}

// Scheduler wraps a cron runner. Jobs never overlap with themselves.
type Scheduler struct {
	ctx  context.Context
	cron *cron.Cron
}

// New returns a Scheduler whose schedules are read in timezone ("" is local time).
// Jobs receive ctx, so cancelling it aborts running work.
func New(ctx context.Context, timezone string) (*Scheduler, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}
	return &Scheduler{ctx: ctx, cron: cron.New(cron.WithLocation(loc))}, nil
}

// Add registers task under a five-field cron schedule. The task is given at
// most the time until its next run.
func (s *Scheduler) Add(kind, schedule string, task Task) error {
	sched, err := cron.ParseStandard(schedule)
	if err != nil {
		log.Warnf("%s job wasn't added for schedule - %s. With error - %s", kind, schedule, err)
		return fmt.Errorf("parse %s schedule: %w", kind, err)
	}
	next := sched.Next(time.Now())
	timeout := sched.Next(next).Sub(next)

	wrapped := cron.NewChain(cron.SkipIfStillRunning(cron.DefaultLogger)).
		Then(job{ctx: s.ctx, kind: kind, timeout: timeout, task: task})
	s.cron.Schedule(sched, wrapped)
	log.Infof("%s job was created with schedule - %s", kind, schedule)
	return nil
}

// Entries returns how many jobs are registered.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

// Start runs the scheduler in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new runs and waits for running jobs to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
