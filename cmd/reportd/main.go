package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"reportd/internal/config"
	"reportd/internal/jobs"
	"reportd/internal/mail"
	"reportd/internal/schedule"
	"reportd/internal/scheduler"
	"reportd/internal/server"
	logx "reportd/pkg/logx"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config file")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfgPath); err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath string) error {
	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
	})
	defer logSvc.Close()
	mgr.SetLogger(log.With(logx.String("comp", "config")))

	retention, err := config.ParseDurationOrDefault("spool.retention", cfg.Spool.Retention, 24*time.Hour)
	if err != nil {
		return err
	}
	busyTimeout, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		return err
	}

	store, err := schedule.Open(schedule.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "store")))
	if err != nil {
		return fmt.Errorf("open schedule store: %w", err)
	}
	defer store.Close()

	ctrl := jobs.New(jobs.Config{
		SpoolDir:   cfg.Spool.Dir,
		Retention:  retention,
		HistoryCap: cfg.Scheduler.HistoryCap,
	}, &jobs.ExecLauncher{
		Bin:    cfg.Extractor.Bin,
		Config: cfg.Extractor.Config,
		Log:    log.With(logx.String("comp", "launcher")),
	}, log.With(logx.String("comp", "jobs")))

	var sender scheduler.Sender = mail.New(mailConfig(cfg), log.With(logx.String("comp", "mail")))
	if cfg.Mail == nil {
		sender = (*mail.Mailer)(nil)
	}

	sched := scheduler.New(
		schedulerConfig(cfg),
		store,
		&scheduler.ExecRunner{
			Bin:    cfg.Extractor.Bin,
			Config: cfg.Extractor.Config,
			Log:    log.With(logx.String("comp", "runner")),
		},
		sender,
		spoolDir(cfg),
		log.With(logx.String("comp", "scheduler")),
	)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	srv := server.New(server.Config{
		Addr: cfg.Server.Addr,
		Mode: cfg.Server.Mode,
	}, ctrl, store, sched, log.With(logx.String("comp", "http")))

	errCh := make(chan error, 1)
	srv.Start(errCh)

	// Hot reload: logging level/sinks and scheduler flags follow the file;
	// everything else needs a restart.
	sub := mgr.Subscribe(1)
	defer mgr.Unsubscribe(sub)
	go func() {
		for next := range sub {
			logSvc.Apply(logx.Config{
				Level:   next.Logging.Level,
				Console: next.Logging.Console,
				File:    logx.FileConfig{Enabled: next.Logging.File.Enabled, Path: next.Logging.File.Path},
			})
			sched.Apply(schedulerConfig(next))
		}
	}()
	go func() {
		if err := mgr.Watch(ctx); err != nil {
			log.Warn("config watch stopped", logx.Err(err))
		}
	}()

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Warn("sd_notify failed", logx.Err(err))
	} else if sent {
		log.Debug("sd_notify ready sent")
	}
	log.Info("reportd started", logx.String("config", cfgPath))

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()
	if err := srv.Stop(shutCtx); err != nil {
		log.Warn("http shutdown", logx.Err(err))
	}
	sched.Stop(shutCtx)
	log.Info("reportd stopped")
	return nil
}

func schedulerConfig(cfg *config.Config) scheduler.Config {
	return scheduler.Config{
		Enabled:   cfg.Scheduler.Enabled,
		Workers:   cfg.Scheduler.Workers,
		QueueSize: cfg.Scheduler.QueueSize,
		Timezone:  cfg.Scheduler.Timezone,
	}
}

func mailConfig(cfg *config.Config) mail.Config {
	if cfg.Mail == nil {
		return mail.Config{}
	}
	starttls := true
	if cfg.Mail.StartTLS != nil {
		starttls = *cfg.Mail.StartTLS
	}
	return mail.Config{
		Host:     cfg.Mail.Host,
		Port:     cfg.Mail.Port,
		Username: cfg.Mail.Username,
		Password: cfg.Mail.Password,
		From:     cfg.Mail.From,
		StartTLS: starttls,
	}
}

func spoolDir(cfg *config.Config) string {
	if cfg.Spool.Dir != "" {
		return cfg.Spool.Dir
	}
	return os.TempDir()
}
