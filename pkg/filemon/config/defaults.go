// Package config provides configuration management for filemon.
package config

import "time"

// Default configuration values for filemon.
const (
	// DefaultContentRoot is the directory the watched folder is resolved against.
	DefaultContentRoot = "."

	// DefaultFolderPath is the folder to watch, relative to the content root.
	DefaultFolderPath = "/wwwroot"

	// DefaultOutputFile is the manifest file name, written inside the watched folder.
	DefaultOutputFile = "monitor-stat.txt"

	// DefaultDebounce coalesces bursts of filesystem events into one rescan.
	DefaultDebounce = 250 * time.Millisecond

	// DefaultPollInterval is used when polling replaces native notifications.
	DefaultPollInterval = 2 * time.Second

	// DefaultHistoryRetentionDays is how long pass history records are kept.
	DefaultHistoryRetentionDays = 30
)

// DefaultExtensions contains the file extensions tracked when none are configured.
var DefaultExtensions = []string{
	".js",
	".css",
}
