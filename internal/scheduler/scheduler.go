// Package scheduler runs periodic reconciliation on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	appLog "calrecon/internal/log"
)

// RunFunc is the work performed on every tick. The context is canceled
// when the scheduler stops.
type RunFunc func(ctx context.Context) error

// Scheduler invokes a RunFunc on a standard 5-field cron schedule. A tick
// that fires while the previous run is still in progress is skipped.
type Scheduler struct {
	spec string
	cron *cron.Cron
	job  cron.Job
	run  RunFunc

	ctx    context.Context
	cancel context.CancelFunc
}

// cronLogger adapts the application logger to cron.Logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	appLog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	appLog.Error("cron: "+msg, err, keysAndValues...)
}

// New validates spec and registers run. The schedule does not fire until
// Start is called.
func New(spec string, run RunFunc) (*Scheduler, error) {
	if run == nil {
		return nil, fmt.Errorf("scheduler: nil run func")
	}

	l := cronLogger{}
	s := &Scheduler{
		spec: spec,
		cron: cron.New(cron.WithLogger(l)),
		run:  run,
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.job = cron.NewChain(cron.Recover(l), cron.SkipIfStillRunning(l)).Then(cron.FuncJob(s.tick))

	if _, err := s.cron.AddJob(spec, s.job); err != nil {
		s.cancel()
		return nil, fmt.Errorf("scheduler: invalid cron spec %q: %w", spec, err)
	}
	return s, nil
}

// Start begins firing the schedule in the background.
func (s *Scheduler) Start() {
	appLog.Info("scheduler started", "cron", s.spec)
	s.cron.Start()
}

// Stop halts the schedule, cancels any in-flight run and waits for it to
// return.
func (s *Scheduler) Stop() {
	done := s.cron.Stop()
	s.cancel()
	<-done.Done()
	appLog.Info("scheduler stopped")
}

// Next reports when the schedule fires next, or the zero time before
// Start.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (s *Scheduler) tick() {
	start := time.Now()
	appLog.Info("scheduled run starting")
	if err := s.run(s.ctx); err != nil {
		appLog.Error("scheduled run failed", err, "duration", time.Since(start).String())
		return
	}
	appLog.Info("scheduled run completed", "duration", time.Since(start).String())
}
