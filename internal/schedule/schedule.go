// Package schedule runs a job on a fixed interval until its context ends.
package schedule

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

type Job func(ctx context.Context) error

type Scheduler struct {
	interval   time.Duration
	runAtStart bool
	logger     *slog.Logger
}

type Option func(*Scheduler)

// WithRunAtStart controls whether the job also runs once immediately,
// before the first tick. Defaults to true.
func WithRunAtStart(v bool) Option {
	return func(s *Scheduler) { s.runAtStart = v }
}

func New(interval time.Duration, logger *slog.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{interval: interval, runAtStart: true, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run blocks until ctx is done, invoking job every interval. Runs never
// overlap: a tick that fires while the previous run is still going is
// skipped. A failed run is logged and does not stop the schedule. Run waits
// for an in-flight job before returning ctx.Err().
func (s *Scheduler) Run(ctx context.Context, name string, job Job) error {
	cl := cronLogger{s.logger}
	c := cron.New(
		cron.WithLogger(cl),
		// Recover sits inside SkipIfStillRunning so a panicking run still
		// hands back the running token.
		cron.WithChain(cron.SkipIfStillRunning(cl), cron.Recover(cl)),
	)

	run := func() {
		start := time.Now()
		s.logger.Info("job starting", "job", name)
		err := job(ctx)
		if errors.Is(err, context.Canceled) {
			s.logger.Info("job canceled", "job", name, "duration", time.Since(start))
			return
		}
		if err != nil {
			s.logger.Error("job failed", "job", name, "error", err, "duration", time.Since(start))
			return
		}
		s.logger.Info("job finished", "job", name, "duration", time.Since(start))
	}

	entryID := c.Schedule(cron.Every(s.interval), cron.FuncJob(run))
	s.logger.Info("schedule started", "job", name, "interval", s.interval, "entry", int(entryID))

	if s.runAtStart {
		// Through the same chain so a slow first run also suppresses ticks.
		c.Entry(entryID).WrappedJob.Run()
	}

	c.Start()
	<-ctx.Done()

	stopped := c.Stop()
	<-stopped.Done()
	s.logger.Info("schedule stopped", "job", name)
	return ctx.Err()
}

// cronLogger routes cron's logging through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
