package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jamesainslie/filemon/pkg/daemon"
	"github.com/jamesainslie/filemon/pkg/filemon/config"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Inspect the filemond background daemon",
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether filemond is running and what its last pass did",
	Args:  cobra.NoArgs,
	RunE:  runDaemonStatus,
}

func init() {
	daemonCmd.AddCommand(daemonStatusCmd)
	rootCmd.AddCommand(daemonCmd)
}

func pidPath() string {
	if cfg.Daemon.PIDPath != "" {
		return cfg.Daemon.PIDPath
	}
	return config.DefaultPIDPath()
}

func runDaemonStatus(cmd *cobra.Command, _ []string) error {
	path := pidPath()
	if !daemon.IsDaemonRunning(path) {
		printInfo("filemond: not running")
		return nil
	}

	pid, _ := daemon.ReadPIDFile(path)
	status, err := daemon.ReadStatus(daemon.StatusPath(filepath.Dir(path)))
	if err != nil {
		if os.IsNotExist(err) {
			printInfo("filemond: running (pid %d), starting up", pid)
			return nil
		}
		return err
	}

	if status.Status == daemon.StateError {
		printInfo("filemond: error (pid %d): %s", pid, status.Error)
		return nil
	}

	fmt.Printf("filemond: running (pid %d) since %s\n", pid, humanize.Time(status.Started))
	fmt.Printf("  folder:    %s\n", status.Root)
	fmt.Printf("  manifest:  %s\n", status.Manifest)
	fmt.Printf("  tracked:   %s files\n", humanize.Comma(int64(status.Tracked)))
	fmt.Printf("  passes:    %d\n", status.Passes)
	if !status.LastPass.IsZero() {
		fmt.Printf("  last pass: %s (+%d ~%d -%d)\n", humanize.Time(status.LastPass),
			status.LastCreated, status.LastUpdated, status.LastDeleted)
	}
	if status.PendingWrite {
		fmt.Println("  warning:   changes not yet written to the manifest")
	}
	return nil
}
