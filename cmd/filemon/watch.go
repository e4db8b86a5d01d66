package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jamesainslie/filemon/pkg/daemon/broadcaster"
	"github.com/jamesainslie/filemon/pkg/filemon/monitor"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the manifest current until interrupted",
	Long: `Run the coordinator in the foreground. Every filesystem change triggers a
pass; the manifest is rewritten whenever a pass changes it.

With --events each created, modified or deleted file is printed as it is
detected. Use --prefix to limit events to one sub-directory.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

var (
	watchEvents  bool
	watchPrefix  string
	watchPolling bool
)

func init() {
	watchCmd.Flags().BoolVar(&watchEvents, "events", false, "print change events")
	watchCmd.Flags().StringVar(&watchPrefix, "prefix", "", "only print events under this relative path")
	watchCmd.Flags().BoolVar(&watchPolling, "poll", false, "poll instead of using filesystem notifications")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	watchOpts := monitor.WatchOptions(cfg.Watch)
	if watchPolling {
		watchOpts.UsePolling = true
	}

	events := broadcaster.New(256)
	defer events.Close()

	var sub *broadcaster.Subscriber
	if watchEvents {
		sub = events.Subscribe(watchPrefix, nil)
	}

	stack, err := monitor.FromConfig(cfg, monitor.WithWatch(watchOpts), monitor.WithBroadcaster(events))
	if err != nil {
		return err
	}
	defer stack.Close() //nolint:errcheck // closed after the coordinator stopped

	printInfo("Watching %s (manifest %s). Press Ctrl+C to stop.", stack.Coordinator.Root(), stack.Coordinator.ManifestPath())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return stack.Coordinator.Run(gctx)
	})
	if sub != nil {
		g.Go(func() error {
			printEvents(gctx, sub)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if stack.Coordinator.HasChanges() {
		printError("stopped with changes not yet written to %s", stack.Coordinator.ManifestPath())
	}
	return nil
}

func printEvents(ctx context.Context, sub *broadcaster.Subscriber) {
	for {
		select {
		case <-ctx.Done():
			if n := sub.Dropped(); n > 0 {
				printError("%d events were dropped", n)
			}
			return
		case ev, ok := <-sub.Events:
			if !ok {
				return
			}
			fmt.Println(formatEvent(ev))
		}
	}
}

func formatEvent(ev *broadcaster.FileEvent) string {
	line := fmt.Sprintf("%s  %-8s  %s", ev.Time.Format(time.TimeOnly), ev.Type, ev.Path)
	if ev.Checksum != "" {
		line += "  " + ev.Checksum
	}
	return line
}
