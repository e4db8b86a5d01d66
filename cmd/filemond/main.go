// Command filemond keeps the manifest of the configured folder up to date in
// the background.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/jamesainslie/filemon/pkg/daemon"
	"github.com/jamesainslie/filemon/pkg/filemon/config"
	"github.com/jamesainslie/filemon/pkg/filemon/logging"
	"github.com/jamesainslie/filemon/pkg/filemon/metrics"
	"github.com/jamesainslie/filemon/pkg/filemon/monitor"
	"github.com/jamesainslie/filemon/pkg/filemon/reconcile"
)

func main() {
	flags := pflag.NewFlagSet("filemond", pflag.ExitOnError)
	cfgFile := flags.String("config", "", "config file (default $XDG_CONFIG_HOME/filemon/config.yaml)")
	flags.StringP("content-root", "r", "", "base directory the folder path is resolved against")
	flags.StringP("folder", "f", "", "folder to monitor, relative to the content root")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address")
	foreground := flags.Bool("foreground", false, "also log to stderr")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load(
		config.WithConfigFile(*cfgFile),
		config.WithFlags(flags, map[string]string{
			"content_root":  "content-root",
			"folder_path":   "folder",
			"logging.level": "log-level",
			"metrics.addr":  "metrics-addr",
		}),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "filemond: %v\n", err)
		os.Exit(1)
	}

	if err := logging.Init(loggingConfig(cfg, *foreground)); err != nil {
		fmt.Fprintf(os.Stderr, "filemond: failed to initialize logging: %v\n", err)
		os.Exit(1)
	}

	err = run(cfg)
	_ = logging.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "filemond: %v\n", err)
		os.Exit(1)
	}
}

func loggingConfig(c *config.Config, foreground bool) logging.Config {
	lc := logging.Config{
		Level:        c.Logging.Level,
		Path:         c.Logging.Path,
		Components:   c.Logging.Components,
		ConsoleLevel: c.Logging.Console,
		Rotation: logging.RotationConfig{
			MaxSizeMB:  c.Logging.Rotation.MaxSizeMB,
			MaxAge:     c.Logging.Rotation.MaxAge,
			MaxBackups: c.Logging.Rotation.MaxBackups,
			Compress:   c.Logging.Rotation.Compress,
		},
	}
	if lc.Path == "" {
		lc.Path = filepath.Join(config.StateDir(), "filemond.log")
	}
	if foreground && lc.ConsoleLevel == "" {
		lc.ConsoleLevel = "info"
	}
	return lc
}

func run(cfg *config.Config) error {
	logger := logging.Get("daemon")

	pidPath := cfg.Daemon.PIDPath
	if pidPath == "" {
		pidPath = config.DefaultPIDPath()
	}
	statusPath := daemon.StatusPath(filepath.Dir(pidPath))

	var statePath string
	if cfg.State.Enabled {
		statePath = cfg.State.Path
	}

	release, err := daemon.Acquire(pidPath, statePath)
	if err != nil {
		return err
	}
	defer release()

	m := metrics.New().WithRuntimeCollectors()

	opts := cfg.Options()
	status := daemon.NewStatusReady(opts.FullPath(), opts.OutputFullPath())

	var stack *monitor.Stack
	writeStatus := func(report reconcile.Report) {
		if report.Skipped {
			return
		}
		c := stack.Coordinator
		status.Observe(report, len(c.Manifest()), c.HasChanges())
		if err := daemon.WriteStatus(statusPath, status); err != nil {
			logger.Warn("failed to write status file", "path", statusPath, "error", err)
		}
	}

	stack, err = monitor.FromConfig(cfg,
		monitor.WithWatch(monitor.WatchOptions(cfg.Watch)),
		monitor.WithMetrics(m),
		monitor.WithPassHook(writeStatus),
	)
	if err != nil {
		_ = daemon.WriteStatusError(statusPath, err)
		return err
	}
	defer func() { _ = stack.Close() }()

	if err := daemon.WriteStatus(statusPath, status); err != nil {
		logger.Warn("failed to write status file", "path", statusPath, "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("filemond starting", "pid", os.Getpid(), "folder", opts.FullPath(), "manifest", opts.OutputFullPath())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return stack.Coordinator.Run(ctx)
	})

	if cfg.Metrics.Addr != "" {
		srv := &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           metricsMux(m),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("serving metrics", "addr", cfg.Metrics.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		_ = daemon.WriteStatusError(statusPath, err)
		return err
	}
	_ = daemon.RemoveStatus(statusPath)
	logger.Info("filemond stopped")
	return nil
}

func metricsMux(m *metrics.Metrics) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}
