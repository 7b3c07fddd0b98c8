// Package app wires the configuration, registry, scheduler and status
// surfaces into one process lifecycle.
package app

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"marketsched/internal/calendar"
	"marketsched/internal/config"
	"marketsched/internal/executor"
	"marketsched/internal/history"
	"marketsched/internal/logging"
	"marketsched/internal/registry"
	"marketsched/internal/scheduler"
	"marketsched/internal/status"
)

type Options struct {
	ConfigPath string
	// SeedDefaults registers the built-in task set when the config file
	// defines no tasks.
	SeedDefaults bool
	// StatusAddr overrides the configured status listen address.
	StatusAddr string
}

type App struct {
	opt Options

	cfgm  *config.Manager
	log   zerolog.Logger
	logC  io.Closer
	cal   calendar.Calendar
	hist  *history.Log
	reg   *registry.Registry
	sched *scheduler.Scheduler
	stat  *status.Server

	watchCancel context.CancelFunc
	watchDone   chan struct{}
	updates     chan *config.Config

	stopOnce sync.Once
}

func New(opt Options) (*App, error) {
	cfgm := config.NewManager(opt.ConfigPath, zerolog.Nop())
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, logC, err := logging.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	cfgm.SetLogger(log.With().Str("comp", "config").Logger())

	cal, err := cfg.Calendar()
	if err != nil {
		logC.Close()
		return nil, err
	}
	histCfg, err := cfg.HistorySettings()
	if err != nil {
		logC.Close()
		return nil, err
	}
	hist, err := history.New(histCfg, log.With().Str("comp", "history").Logger())
	if err != nil {
		logC.Close()
		return nil, fmt.Errorf("init history: %w", err)
	}

	eng := executor.New(hist, executor.Options{}, log.With().Str("comp", "executor").Logger())
	reg := registry.New(cal, log.With().Str("comp", "registry").Logger())

	tasks, err := cfg.TaskList()
	if err != nil {
		hist.Close()
		logC.Close()
		return nil, err
	}
	if len(tasks) == 0 && opt.SeedDefaults {
		tasks = DefaultTasks()
		log.Info().Int("tasks", len(tasks)).Msg("no tasks configured; seeding default set")
	}
	reg.Sync(tasks)

	schedCfg, err := cfg.SchedulerSettings()
	if err != nil {
		hist.Close()
		logC.Close()
		return nil, err
	}
	sched := scheduler.New(schedCfg, reg, hist, cal, eng, log.With().Str("comp", "scheduler").Logger())
	stat := status.New(sched.Snapshot, log)

	// Reject config updates whose task list cannot compile before they
	// are published to subscribers.
	cfgm.SetValidator(func(_ context.Context, c *config.Config) error {
		_, err := c.TaskList()
		return err
	})

	return &App{
		opt:   opt,
		cfgm:  cfgm,
		log:   log.With().Str("comp", "app").Logger(),
		logC:  logC,
		cal:   cal,
		hist:  hist,
		reg:   reg,
		sched: sched,
		stat:  stat,
	}, nil
}

func (a *App) Registry() *registry.Registry    { return a.reg }
func (a *App) Scheduler() *scheduler.Scheduler { return a.sched }
func (a *App) Config() *config.Config          { return a.cfgm.Get() }

func (a *App) Start(ctx context.Context) error {
	a.sched.Start()
	a.stat.Apply(ctx, a.statusConfig(a.cfgm.Get()))

	wctx, cancel := context.WithCancel(context.Background())
	a.watchCancel = cancel
	a.watchDone = make(chan struct{})
	a.updates = a.cfgm.Subscribe(4)

	go func() {
		defer close(a.watchDone)
		if err := a.cfgm.Watch(wctx); err != nil {
			a.log.Warn().Err(err).Msg("config watch stopped")
		}
	}()
	go a.consumeUpdates(wctx)

	a.log.Info().Str("config", a.opt.ConfigPath).Int("tasks", a.reg.Len()).Msg("started")
	return nil
}

func (a *App) Stop(ctx context.Context) {
	a.stopOnce.Do(func() {
		if a.watchCancel != nil {
			a.watchCancel()
			<-a.watchDone
		}
		if a.updates != nil {
			a.cfgm.Unsubscribe(a.updates)
		}
		a.sched.Stop(ctx)
		a.stat.Close(ctx)
		if err := a.hist.Close(); err != nil {
			a.log.Warn().Err(err).Msg("history close failed")
		}
		a.log.Info().Msg("stopped")
		_ = a.logC.Close()
	})
}

// consumeUpdates applies published config changes to the live registry and
// status listener. Scheduler timing knobs stay fixed for the process life.
func (a *App) consumeUpdates(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-a.updates:
			if !ok {
				return
			}
			tasks, err := cfg.TaskList()
			if err != nil {
				// validator should have caught this
				a.log.Warn().Err(err).Msg("rejecting config update")
				continue
			}
			a.reg.Sync(tasks)
			a.stat.Apply(ctx, a.statusConfig(cfg))
			a.log.Info().Int("tasks", a.reg.Len()).Msg("applied config update")
		}
	}
}

func (a *App) statusConfig(cfg *config.Config) status.Config {
	sc := status.Config{Enabled: cfg.Status.Enabled, Address: cfg.StatusAddress()}
	if a.opt.StatusAddr != "" {
		sc.Enabled = true
		sc.Address = a.opt.StatusAddr
	}
	return sc
}
