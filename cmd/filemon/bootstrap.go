package main

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/filemon/pkg/filemon/config"
	"github.com/jamesainslie/filemon/pkg/filemon/logging"
	"github.com/jamesainslie/filemon/pkg/filemon/output"
)

// bootstrap loads the configuration and initializes logging before any
// command runs.
func bootstrap(cmd *cobra.Command, _ []string) error {
	if err := ensureDirectories(); err != nil {
		return err
	}

	loaded, err := config.Load(
		config.WithConfigFile(cfgFile),
		config.WithFlags(cmd.Flags(), flagBindings),
	)
	if err != nil {
		return err
	}
	cfg = loaded

	if err := logging.Init(loggingConfig(cfg, verbose)); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	cobra.OnFinalize(func() { _ = logging.Close() })

	logging.Get("cli").Debug("configuration loaded", "file", cfg.File, "command", cmd.Name())
	return nil
}

// loggingConfig converts the logging section. Verbose mode mirrors debug
// output to stderr.
func loggingConfig(c *config.Config, verbose bool) logging.Config {
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
		lc.Path = config.DefaultLogPath()
	}
	if verbose {
		lc.ConsoleLevel = "debug"
	}
	return lc
}

// ensureDirectories creates the XDG directories filemon writes to.
func ensureDirectories() error {
	for _, dir := range []string{config.DataDir(), config.StateDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

func formatList() string {
	return strings.Join(output.Available(), ", ")
}

// render writes r in the format selected by --output.
func render(r *output.Result) error {
	formatter, err := output.Get(outputFormat)
	if err != nil {
		return fmt.Errorf("%w (available: %s)", err, formatList())
	}

	var buf bytes.Buffer
	if err := formatter.Format(&buf, r); err != nil {
		return err
	}
	_, err = os.Stdout.Write(buf.Bytes())
	return err
}
