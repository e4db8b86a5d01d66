package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jamesainslie/filemon/pkg/filemon/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Manage filemon configuration settings.

Configuration is loaded from:
  1. $XDG_CONFIG_HOME/filemon/config.yaml (if set)
  2. ~/.config/filemon/config.yaml

Environment variables override config file settings using the FILEMON_ prefix:
  FILEMON_FOLDER_PATH=/public
  FILEMON_OUTPUT_FILE=checksums.txt
  FILEMON_WATCH_USE_POLLING=true`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the default configuration file",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the configuration file path",
	Args:  cobra.NoArgs,
	RunE:  runConfigPath,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

// shownConfig is the YAML view printed by `config show`.
type shownConfig struct {
	ContentRoot string   `yaml:"content_root"`
	FolderPath  string   `yaml:"folder_path"`
	Watched     string   `yaml:"watched"`
	Manifest    string   `yaml:"manifest"`
	Extensions  []string `yaml:"extensions"`
	Exclude     []string `yaml:"exclude"`
	Ignore      []string `yaml:"ignore"`
	Watch       struct {
		Debounce     string `yaml:"debounce"`
		PollInterval string `yaml:"poll_interval"`
		UsePolling   bool   `yaml:"use_polling"`
	} `yaml:"watch"`
	History struct {
		Enabled       bool   `yaml:"enabled"`
		Path          string `yaml:"path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"history"`
	State struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"state"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
}

func showConfig(c *config.Config) shownConfig {
	opts := c.Options()

	var s shownConfig
	s.ContentRoot = c.ContentRoot
	s.FolderPath = c.FolderPath
	s.Watched = opts.FullPath()
	s.Manifest = opts.OutputFullPath()
	s.Extensions = opts.NormalizedExtensions()
	s.Exclude = opts.NormalizedExcludedPaths()
	s.Ignore = c.Ignore
	s.Watch.Debounce = c.Watch.Debounce.String()
	s.Watch.PollInterval = c.Watch.PollInterval.String()
	s.Watch.UsePolling = c.Watch.UsePolling
	s.History.Enabled = c.History.Enabled
	s.History.Path = c.History.Path
	s.History.RetentionDays = c.History.RetentionDays
	s.State.Enabled = c.State.Enabled
	s.State.Path = c.State.Path
	s.MetricsAddr = c.Metrics.Addr
	s.LogLevel = c.Logging.Level
	return s
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	if cfg.File != "" {
		fmt.Printf("# Config file: %s\n", cfg.File)
	} else {
		fmt.Println("# Config file: (using defaults, no file found)")
	}

	data, err := yaml.Marshal(showConfig(cfg))
	if err != nil {
		return err
	}
	fmt.Print(string(data))

	var overrides []string
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, "FILEMON_") {
			overrides = append(overrides, kv)
		}
	}
	if len(overrides) > 0 {
		fmt.Println("\n# Environment overrides:")
		for _, kv := range overrides {
			fmt.Printf("#   %s\n", kv)
		}
	}

	if err := cfg.Options().Validate(); err != nil {
		printError("%v", err)
	}
	return nil
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	configDir, err := config.ConfigDir()
	if err != nil {
		return err
	}
	configPath := filepath.Join(configDir, "config.yaml")

	if _, err := os.Stat(configPath); err == nil {
		printInfo("Config file already exists: %s", configPath)
		return nil
	}

	written, err := config.WriteDefault()
	if err != nil {
		return err
	}
	printInfo("Created default config file: %s", written)
	return nil
}

func runConfigPath(cmd *cobra.Command, _ []string) error {
	if cfg.File != "" {
		fmt.Println(cfg.File)
		return nil
	}

	configDir, err := config.ConfigDir()
	if err != nil {
		return err
	}
	fmt.Println(filepath.Join(configDir, "config.yaml"))
	return nil
}
