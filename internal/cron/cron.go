// Package cron runs the server's periodic maintenance jobs.
package cron

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler is a cron-like job scheduler.
type Scheduler struct {
	*cron.Cron
	logger *slog.Logger
}

// cronLogger adapts slog to the cron.Logger interface.
type cronLogger struct {
	logger *slog.Logger
}

// Info logs routine messages about cron's operation.
func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

// Error logs an error condition.
func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}

// NewScheduler returns a Scheduler logging through logger (slog.Default when nil).
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "cron")
	return &Scheduler{
		Cron: cron.New(
			cron.WithLogger(cronLogger{logger}),
			cron.WithChain(cron.Recover(cronLogger{logger}), cron.SkipIfStillRunning(cronLogger{logger})),
		),
		logger: logger,
	}
}

// Shutdown stops the scheduler and waits up to 30s for running jobs.
func (s *Scheduler) Shutdown() {
	ctx, cancel := context.WithTimeout(s.Cron.Stop(), 30*time.Second)
	defer cancel()
	<-ctx.Done()
}

// AddFunc adds a job to the Scheduler.
func (s *Scheduler) AddFunc(spec string, fn func()) (int, error) {
	id, err := s.Cron.AddFunc(spec, fn)
	return int(id), err
}

// Remove removes a job from the Scheduler.
func (s *Scheduler) Remove(id int) {
	s.Cron.Remove(cron.EntryID(id))
}

// SessionCleaner deletes expired sessions and reports how many went.
type SessionCleaner interface {
	CleanExpiredSessions(ctx context.Context) (int64, error)
}

// AddSessionCleanup schedules cleaner on spec. onClean, when set, receives
// the number of sessions removed by each successful run.
func (s *Scheduler) AddSessionCleanup(spec string, cleaner SessionCleaner, onClean func(n int64)) (int, error) {
	return s.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		n, err := cleaner.CleanExpiredSessions(ctx)
		if err != nil {
			s.logger.Error("cleaning expired sessions", "error", err)
			return
		}
		if n > 0 {
			s.logger.Info("expired sessions removed", "count", n)
		}
		if onClean != nil {
			onClean(n)
		}
	})
}

// Sweeper drops idle state older than the given age.
type Sweeper interface {
	Sweep(idle time.Duration) int
}

// AddSweep schedules sw to forget entries idle for longer than idle.
func (s *Scheduler) AddSweep(spec, name string, sw Sweeper, idle time.Duration) (int, error) {
	return s.AddFunc(spec, func() {
		if n := sw.Sweep(idle); n > 0 {
			s.logger.Debug("swept idle entries", "target", name, "count", n)
		}
	})
}
