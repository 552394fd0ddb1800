package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/samely/samely/internal/activity"
	"github.com/samely/samely/internal/api"
	"github.com/samely/samely/internal/assignment"
	"github.com/samely/samely/internal/config"
	"github.com/samely/samely/internal/cron"
	"github.com/samely/samely/internal/metrics"
	"github.com/samely/samely/internal/notify"
	"github.com/samely/samely/internal/ratelimit"
	"github.com/samely/samely/internal/team"
	"github.com/samely/samely/internal/user"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Same'ly API server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// limiterSweepSchedule controls how often idle rate-limit buckets are dropped.
const limiterSweepSchedule = "@every 10m"

func newSender(cfg config.MailConfig) notify.Sender {
	switch cfg.Provider {
	case config.MailSendGrid:
		return notify.NewSendGridSender(cfg.SendGridAPIKey, cfg.FromName, cfg.FromAddress)
	case config.MailNone:
		return notify.NopSender{}
	default:
		return notify.NewLogSender(slog.Default())
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	be, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer be.Close()

	m := metrics.New()
	if be.pool != nil {
		m.RegisterDBPoolCollector(cfg.Database.Driver, func() metrics.PoolStats {
			s := be.pool.Stats()
			return metrics.PoolStats{Total: s.Total, Idle: s.Idle, Acquired: s.Acquired, Max: s.Max}
		})
	}

	collector := activity.NewCollector(be.activity, cfg.Activity.BatchSize, cfg.Activity.FlushInterval)
	collector.OnFlush(func(count int, took time.Duration, err error) {
		m.ObserveFlush(count, took, err)
		m.SetBufferSize(collector.Pending())
	})
	go collector.Start(ctx)

	users := user.NewService(be.users, user.Options{
		SessionTTL: cfg.Session.TTL,
		CacheSize:  cfg.Session.CacheSize,
		CacheTTL:   cfg.Session.CacheTTL,
	})
	teams := team.NewService(be.teams, users, be.tx, collector, be.activity)

	dispatcher, err := notify.NewDispatcher(newSender(cfg.Mail), cfg.App.Name, cfg.App.BaseURL)
	if err != nil {
		return fmt.Errorf("loading notification templates: %w", err)
	}
	dispatcher.OnResult(func(event assignment.EventKind, audience string, err error) {
		m.IncNotification(string(event), audience, err)
	})
	assignments := assignment.NewService(be.assignments, teams, users, be.tx, dispatcher, collector)

	limiter := ratelimit.New(cfg.RateLimit.Default, cfg.RateLimit.Window)
	var authLimiter *ratelimit.Limiter
	if cfg.RateLimit.Auth > 0 {
		authLimiter = ratelimit.New(cfg.RateLimit.Auth, cfg.RateLimit.Window)
	}

	scheduler := cron.NewScheduler(logger)
	if _, err := scheduler.AddSessionCleanup(cfg.Session.CleanupSchedule, users, m.AddSessionsCleaned); err != nil {
		return fmt.Errorf("scheduling session cleanup: %w", err)
	}
	if _, err := scheduler.AddSweep(limiterSweepSchedule, "user_limiter", limiter, 2*cfg.RateLimit.Window); err != nil {
		return fmt.Errorf("scheduling limiter sweep: %w", err)
	}
	if authLimiter != nil {
		if _, err := scheduler.AddSweep(limiterSweepSchedule, "auth_limiter", authLimiter, 2*cfg.RateLimit.Window); err != nil {
			return fmt.Errorf("scheduling limiter sweep: %w", err)
		}
	}
	scheduler.Start()

	deps := api.RouterDeps{
		Users:          users,
		Teams:          teams,
		Assignments:    assignments,
		Sessions:       user.NewAuthAdapter(users),
		Limiter:        limiter,
		AuthLimiter:    authLimiter,
		Metrics:        m,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Version:        version,
	}
	if be.pool != nil {
		deps.DBPool = be.pool
	}

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      api.NewRouter(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", cfg.Addr(), "driver", cfg.Database.Driver, "mail", cfg.Mail.Provider)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-sigCh:
		slog.Info("shutting down")
	case err := <-errCh:
		slog.Error("server error", "error", err)
		cancel()
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	scheduler.Shutdown()
	err = srv.Shutdown(shutdownCtx)

	collector.Stop()
	collector.Flush()
	return err
}
