// Package app is the composition root: it builds every component from the
// loaded config, wires the scheduled jobs, and owns startup and shutdown
// order.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"matchbell/internal/bot"
	"matchbell/internal/config"
	"matchbell/internal/leaguepedia"
	"matchbell/internal/notify"
	"matchbell/internal/scheduler"
	"matchbell/internal/storage"
	"matchbell/internal/telegram"
	"matchbell/pkg/logx"
)

// Job names as registered with the scheduler.
const (
	JobFetch  = "fetch-matches"
	JobDetect = "detect-imminent"
	JobRetry  = "retry-failed"
)

type App struct {
	cfg  *config.Config
	logs *logx.Service
	log  logx.Logger

	store      storage.Store
	source     *leaguepedia.Client
	transport  *telegram.Client
	dispatcher *notify.Dispatcher
	retrier    *notify.Coordinator
	sched      *scheduler.Service
	bot        *bot.Service
}

// New builds the full component graph. Nothing starts running until Start.
func New(cfgPath string) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console || !cfg.Logging.File.Enabled,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	a := &App{cfg: cfg, logs: logs, log: log}
	if err := a.build(); err != nil {
		_ = logs.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build() error {
	cfg := a.cfg

	busyTimeout, err := config.ParseDurationField("database.busy_timeout", cfg.Database.BusyTimeout)
	if err != nil {
		return err
	}
	store, err := storage.Open(storage.Config{
		Path:        cfg.Database.Path,
		BusyTimeout: busyTimeout,
	}, a.log.With(logx.String("comp", "storage")))
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	a.store = store

	apiTimeout, err := config.ParseDurationField("leaguepedia.timeout", cfg.Leaguepedia.Timeout)
	if err != nil {
		return err
	}
	a.source = leaguepedia.New(leaguepedia.Config{
		APIURL:    cfg.Leaguepedia.APIURL,
		UserAgent: cfg.Leaguepedia.UserAgent,
		Timeout:   apiTimeout,
	}, a.log.With(logx.String("comp", "leaguepedia")))

	a.transport = telegram.New(telegram.Config{
		Token:  cfg.Telegram.Token,
		APIURL: cfg.Telegram.APIURL,
	}, a.log.With(logx.String("comp", "telegram")))

	loc := time.UTC
	if tz := cfg.Scheduler.Timezone; tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		}
	}

	retryWindow, err := config.ParseDurationField("notify.retry_window", cfg.Notify.RetryWindow)
	if err != nil {
		return err
	}
	ncfg := notify.Config{
		MaxRetries:  cfg.Notify.MaxRetries,
		RetryWindow: retryWindow,
		Location:    loc,
	}
	nlog := a.log.With(logx.String("comp", "notify"))
	a.dispatcher = notify.NewDispatcher(store, a.transport, ncfg, nlog)
	a.retrier = notify.NewCoordinator(store, a.transport, ncfg, nlog)

	a.sched = scheduler.New(scheduler.Config{
		Timezone: cfg.Scheduler.Timezone,
	}, a.log.With(logx.String("comp", "scheduler")))
	if err := a.registerJobs(); err != nil {
		return err
	}

	if cfg.Telegram.Bot {
		pollTimeout, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout)
		if err != nil {
			return err
		}
		a.bot, err = bot.New(bot.Config{
			Token:       cfg.Telegram.Token,
			PollTimeout: pollTimeout,
			Location:    loc,
		}, bot.Deps{
			Store:     store,
			Roster:    a.source,
			Transport: a.transport,
			Sched:     a.sched,
		}, a.log.With(logx.String("comp", "bot")))
		if err != nil {
			return fmt.Errorf("build bot: %w", err)
		}
	}
	return nil
}

func (a *App) registerJobs() error {
	cfg := a.cfg.Scheduler
	fetchEvery := time.Duration(cfg.FetchIntervalMinutes) * time.Minute
	checkEvery := time.Duration(cfg.CheckIntervalMinutes) * time.Minute

	if err := a.sched.Register(JobFetch, fetchEvery, 2*time.Minute, a.fetchMatches); err != nil {
		return err
	}
	if err := a.sched.Register(JobDetect, checkEvery, time.Minute, a.dispatcher.DispatchImminent); err != nil {
		return err
	}
	return a.sched.Register(JobRetry, time.Hour, 5*time.Minute, func(ctx context.Context) error {
		_, _, err := a.retrier.RetryFailed(ctx)
		return err
	})
}

// fetchMatches pulls the upcoming schedule and refreshes the cache.
func (a *App) fetchMatches(ctx context.Context) error {
	matches := a.source.FetchUpcoming(ctx, a.cfg.Scheduler.FetchDays)
	written, err := a.store.UpsertMatches(ctx, matches)
	if err != nil {
		return err
	}
	a.log.Info("match cache refreshed",
		logx.Int("fetched", len(matches)),
		logx.Int("written", written))
	return nil
}

// Start validates external reachability, starts the scheduler and the bot,
// and signals readiness to systemd. Startup check failures are logged, not
// fatal: the pipeline degrades to fallback data and retries.
func (a *App) Start(ctx context.Context) error {
	if err := telegram.ValidateToken(a.cfg.Telegram.Token); err != nil {
		return err
	}
	if info, err := a.transport.Me(ctx); err != nil {
		a.log.Warn("telegram reachability check failed", logx.Err(err))
	} else {
		a.log.Info("telegram bot verified", logx.String("username", info.Username))
	}
	if !a.source.ValidateConnection(ctx) {
		a.log.Warn("leaguepedia unreachable, fallback data will be used")
	}

	// Prime the cache before the first tick so detection has candidates.
	if err := a.fetchMatches(ctx); err != nil {
		a.log.Warn("initial match fetch failed", logx.Err(err))
	}

	if err := a.sched.Start(ctx); err != nil {
		return err
	}
	if a.bot != nil {
		if err := a.bot.Start(ctx); err != nil {
			return err
		}
	}

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("sd_notify failed", logx.Err(err))
	} else if ok {
		a.log.Debug("sd_notify ready sent")
	}
	a.log.Info("matchbell started")
	return nil
}

// Stop shuts components down in reverse start order.
func (a *App) Stop(ctx context.Context) error {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	if a.bot != nil {
		a.bot.Stop(ctx)
	}
	a.sched.Stop(ctx)

	var firstErr error
	if err := a.store.Close(); err != nil {
		firstErr = err
	}
	a.log.Info("matchbell stopped")
	if err := a.logs.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
