package config

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// ErrInvalidOptions is returned when a required watcher option is missing.
var ErrInvalidOptions = errors.New("invalid watcher options")

// Options describes what a coordinator watches. It is treated as immutable
// once a coordinator has been created from it.
type Options struct {
	// ContentRoot is the base directory, e.g. the process working directory.
	ContentRoot string

	// FolderPath is the folder to monitor, relative to ContentRoot.
	// Example: "/wwwroot".
	FolderPath string

	// FileExtensions lists the extensions to track. Example: []string{".js", ".css"}.
	FileExtensions []string

	// OutputFileName is the manifest file name. Example: "monitor-stat.txt".
	OutputFileName string

	// ExcludedPaths lists sub-directories, relative to the watched folder,
	// whose contents are never tracked.
	ExcludedPaths []string

	// IgnorePatterns lists glob patterns matched against base names of new files.
	IgnorePatterns []string
}

// Validate reports the first required field that is missing.
func (o Options) Validate() error {
	switch {
	case isBlank(o.ContentRoot):
		return missing("content_root")
	case isBlank(o.FolderPath):
		return missing("folder_path")
	case isBlank(o.FullPath()):
		return missing("full_path")
	case isBlank(o.OutputFileName):
		return missing("output_file")
	case len(o.NormalizedExtensions()) == 0:
		return missing("extensions")
	}
	return nil
}

func missing(field string) error {
	return fmt.Errorf("%w: %s cannot be empty", ErrInvalidOptions, field)
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// NormalizedFolderPath returns FolderPath with forward slashes, no leading
// slash and exactly one trailing slash.
func (o Options) NormalizedFolderPath() string {
	if o.FolderPath == "" {
		return ""
	}

	p := strings.ReplaceAll(o.FolderPath, `\`, "/")
	p = strings.TrimPrefix(p, "/")
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

// NormalizedExtensions returns the configured extensions, each with a
// leading dot. Blank entries are dropped.
func (o Options) NormalizedExtensions() []string {
	exts := make([]string, 0, len(o.FileExtensions))
	for _, ext := range o.FileExtensions {
		ext = strings.TrimSpace(ext)
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts = append(exts, ext)
	}
	return exts
}

// NormalizedExcludedPaths returns the excluded sub-paths without a leading
// slash and with a trailing slash, so they can be used as plain prefixes.
func (o Options) NormalizedExcludedPaths() []string {
	paths := make([]string, 0, len(o.ExcludedPaths))
	for _, p := range o.ExcludedPaths {
		p = strings.ReplaceAll(strings.TrimSpace(p), `\`, "/")
		if p == "" {
			continue
		}
		p = strings.TrimPrefix(p, "/")
		if !strings.HasSuffix(p, "/") {
			p += "/"
		}
		paths = append(paths, p)
	}
	return paths
}

// FullPath returns the absolute-or-relative watched directory with forward
// slashes and no trailing slash.
func (o Options) FullPath() string {
	if isBlank(o.ContentRoot) {
		return ""
	}
	root := filepath.ToSlash(o.ContentRoot)
	return path.Join(root, o.NormalizedFolderPath())
}

// OutputFullPath returns the location of the manifest file.
func (o Options) OutputFullPath() string {
	return path.Join(o.FullPath(), o.OutputFileName)
}
