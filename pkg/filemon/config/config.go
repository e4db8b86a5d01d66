package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// appName names the XDG sub-directories and the environment prefix.
const appName = "filemon"

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxAge     int  `mapstructure:"max_age"`
	MaxBackups int  `mapstructure:"max_backups"`
	Compress   bool `mapstructure:"compress"`
}

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level      string            `mapstructure:"level"`
	Path       string            `mapstructure:"path"`
	Console    string            `mapstructure:"console"`
	Rotation   RotationConfig    `mapstructure:"rotation"`
	Components map[string]string `mapstructure:"components"`
}

// WatchConfig configures how change signals are produced.
type WatchConfig struct {
	Debounce     time.Duration `mapstructure:"debounce"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	UsePolling   bool          `mapstructure:"use_polling"`
}

// HistoryConfig configures the per-pass history log.
type HistoryConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Path          string `mapstructure:"path"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// StateConfig configures the persisted modification-time store.
type StateConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// MetricsConfig configures the Prometheus endpoint of the daemon.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// DaemonConfig configures the background daemon.
type DaemonConfig struct {
	PIDPath string `mapstructure:"pid_path"`
}

// Config represents the application configuration.
type Config struct {
	ContentRoot string        `mapstructure:"content_root"`
	FolderPath  string        `mapstructure:"folder_path"`
	Extensions  []string      `mapstructure:"extensions"`
	OutputFile  string        `mapstructure:"output_file"`
	Exclude     []string      `mapstructure:"exclude"`
	Ignore      []string      `mapstructure:"ignore"`
	Watch       WatchConfig   `mapstructure:"watch"`
	History     HistoryConfig `mapstructure:"history"`
	State       StateConfig   `mapstructure:"state"`
	Metrics     MetricsConfig `mapstructure:"metrics"`
	Logging     LoggingConfig `mapstructure:"logging"`
	Daemon      DaemonConfig  `mapstructure:"daemon"`

	// File is the config file that was read, empty when only defaults apply.
	File string `mapstructure:"-"`
}

// Options returns the watcher options described by the configuration.
func (c *Config) Options() Options {
	return Options{
		ContentRoot:    c.ContentRoot,
		FolderPath:     c.FolderPath,
		FileExtensions: c.Extensions,
		OutputFileName: c.OutputFile,
		ExcludedPaths:  c.Exclude,
		IgnorePatterns: c.Ignore,
	}
}

// LoadOption customizes the viper instance used by Load.
type LoadOption func(v *viper.Viper) error

// WithConfigFile reads configuration from an explicit file instead of the
// default search paths.
func WithConfigFile(path string) LoadOption {
	return func(v *viper.Viper) error {
		if path != "" {
			v.SetConfigFile(path)
		}
		return nil
	}
}

// WithFlags binds command-line flags to configuration keys. Only flags the
// user actually set override file and environment values.
func WithFlags(fs *pflag.FlagSet, bindings map[string]string) LoadOption {
	return func(v *viper.Viper) error {
		for key, name := range bindings {
			flag := fs.Lookup(name)
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return fmt.Errorf("binding flag %s: %w", name, err)
			}
		}
		return nil
	}
}

// Load loads configuration from file and environment variables.
// Config file locations (in order of precedence):
//   - $XDG_CONFIG_HOME/filemon/config.yaml
//   - $HOME/.config/filemon/config.yaml
//
// Environment variables are prefixed with FILEMON_ (e.g., FILEMON_OUTPUT_FILE).
func Load(opts ...LoadOption) (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		v.AddConfigPath(filepath.Join(xdgConfigHome, appName))
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(homeDir, ".config", appName))
	}

	v.SetEnvPrefix(strings.ToUpper(appName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	for _, opt := range opts {
		if err := opt(v); err != nil {
			return nil, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	var err error
	if cfg.ContentRoot, err = ExpandPath(cfg.ContentRoot); err != nil {
		return nil, err
	}
	if cfg.History.Path, err = ExpandPath(cfg.History.Path); err != nil {
		return nil, err
	}
	if cfg.State.Path, err = ExpandPath(cfg.State.Path); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("content_root", DefaultContentRoot)
	v.SetDefault("folder_path", DefaultFolderPath)
	v.SetDefault("extensions", DefaultExtensions)
	v.SetDefault("output_file", DefaultOutputFile)
	v.SetDefault("exclude", []string{})
	v.SetDefault("ignore", []string{})

	v.SetDefault("watch.debounce", DefaultDebounce)
	v.SetDefault("watch.poll_interval", DefaultPollInterval)
	v.SetDefault("watch.use_polling", false)

	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", DefaultHistoryDir())
	v.SetDefault("history.retention_days", DefaultHistoryRetentionDays)

	v.SetDefault("state.enabled", false)
	v.SetDefault("state.path", DefaultStatePath())

	v.SetDefault("metrics.addr", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.path", "") // Empty means use DefaultLogPath
	v.SetDefault("logging.console", "")
	v.SetDefault("logging.rotation.max_size_mb", 10)
	v.SetDefault("logging.rotation.max_age", 30)
	v.SetDefault("logging.rotation.max_backups", 5)
	v.SetDefault("logging.rotation.compress", false)
	v.SetDefault("logging.components", map[string]string{
		"monitor":   "info",
		"reconcile": "info",
		"manifest":  "info",
		"watcher":   "warn",
	})

	v.SetDefault("daemon.pid_path", "") // Empty means use DefaultPIDPath
}

// ConfigDir returns the configuration directory path.
func ConfigDir() (string, error) {
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, appName), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", appName), nil
}

// WriteDefault writes a default config file if none exists and returns its
// path. An existing file is left untouched.
func WriteDefault() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	configPath := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(configPath); err == nil {
		return configPath, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to check config file: %w", err)
	}

	defaultConfig := fmt.Sprintf(`# filemon configuration

# Base directory the watched folder is resolved against
content_root: %s

# Folder to monitor, relative to content_root
folder_path: %s

# File extensions to track
extensions:
  - .js
  - .css

# Manifest file written inside the watched folder
output_file: %s

# Sub-directories (relative to the watched folder) that are never tracked
exclude: []

# Glob patterns matched against base names of new files
ignore: []

watch:
  debounce: %s
  poll_interval: %s
  use_polling: false

# Per-pass change history
history:
  enabled: true
  path: %s
  retention_days: %d

# Persist last-seen modification times so edits made while filemon was
# stopped are detected on the next start
state:
  enabled: false
  path: %s

metrics:
  # Address for the daemon's /metrics endpoint, e.g. 127.0.0.1:9464 (empty disables)
  addr: ""

logging:
  # Log level: debug, info, warn, error
  level: info
  # Log file path (empty means use default: $XDG_STATE_HOME/filemon/filemon.log)
  path: ""
  # Console level (empty disables console output)
  console: ""
  rotation:
    max_size_mb: 10
    max_age: 30       # days
    max_backups: 5
    compress: false
  components:
    monitor: info
    reconcile: info
    manifest: info
    watcher: warn

daemon:
  # PID file path (empty means use default: $XDG_DATA_HOME/filemon/filemond.pid)
  pid_path: ""
`, DefaultContentRoot, DefaultFolderPath, DefaultOutputFile, DefaultDebounce, DefaultPollInterval,
		DefaultHistoryDir(), DefaultHistoryRetentionDays, DefaultStatePath())

	if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil {
		return "", fmt.Errorf("failed to write default config: %w", err)
	}

	return configPath, nil
}

// ExpandPath expands ~ in a path to the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, path[1:]), nil
}

// DataDir returns $XDG_DATA_HOME/filemon/ for the state store and pid file.
func DataDir() string {
	return filepath.Join(xdg.DataHome, appName)
}

// StateDir returns $XDG_STATE_HOME/filemon/ for log files and history.
func StateDir() string {
	return filepath.Join(xdg.StateHome, appName)
}

// DefaultLogPath returns the default log file path.
func DefaultLogPath() string {
	return filepath.Join(StateDir(), appName+".log")
}

// DefaultHistoryDir returns the default directory for pass history records.
func DefaultHistoryDir() string {
	return filepath.Join(StateDir(), "history")
}

// DefaultStatePath returns the default state store directory.
func DefaultStatePath() string {
	return filepath.Join(DataDir(), "state")
}

// DefaultPIDPath returns the default daemon PID file path.
func DefaultPIDPath() string {
	return filepath.Join(DataDir(), "filemond.pid")
}
