// Package filter decides which paths under the watched folder are tracked.
package filter

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/gobwas/glob"

	"github.com/jamesainslie/filemon/pkg/filemon/config"
)

// ErrInvalidPattern is returned when an ignore pattern does not compile.
var ErrInvalidPattern = errors.New("invalid ignore pattern")

// Rules holds the normalized tracking rules of one watched folder.
type Rules struct {
	extensions map[string]struct{}
	excluded   []string
	output     string
	ignore     []glob.Glob
}

// New builds Rules from watcher options. Ignore patterns are compiled up
// front so a bad pattern fails at startup.
func New(opts config.Options) (*Rules, error) {
	r := &Rules{
		extensions: make(map[string]struct{}),
		excluded:   opts.NormalizedExcludedPaths(),
		output:     opts.OutputFileName,
	}
	for _, ext := range opts.NormalizedExtensions() {
		r.extensions[strings.ToLower(ext)] = struct{}{}
	}
	for _, pattern := range opts.IgnorePatterns {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("%w %q: %v", ErrInvalidPattern, pattern, err)
		}
		r.ignore = append(r.ignore, g)
	}
	return r, nil
}

// IsOutput reports whether name is the manifest file name.
func (r *Rules) IsOutput(name string) bool {
	return name == r.output
}

// IsExcluded reports whether the relative path starts with an excluded prefix.
func (r *Rules) IsExcluded(rel string) bool {
	for _, prefix := range r.excluded {
		if strings.HasPrefix(rel, prefix) {
			return true
		}
	}
	return false
}

// IsExcludedDir reports whether the directory at rel is excluded. Prefixes
// carry a trailing slash, so the directory is tested in that form.
func (r *Rules) IsExcludedDir(rel string) bool {
	if !strings.HasSuffix(rel, "/") {
		rel += "/"
	}
	return r.IsExcluded(rel)
}

// Recognized reports whether a new file with this name may be tracked:
// it has a configured extension and matches no ignore pattern.
func (r *Rules) Recognized(name string) bool {
	ext := path.Ext(name)
	if ext == "" {
		return false
	}
	if _, ok := r.extensions[strings.ToLower(ext)]; !ok {
		return false
	}
	for _, g := range r.ignore {
		if g.Match(name) {
			return false
		}
	}
	return true
}

// Tracks applies every rule to a relative file path.
func (r *Rules) Tracks(rel string) bool {
	name := path.Base(rel)
	return !r.IsOutput(name) && r.Recognized(name) && !r.IsExcluded(rel)
}

// Extensions returns the recognized extensions in lower case.
func (r *Rules) Extensions() []string {
	out := make([]string, 0, len(r.extensions))
	for ext := range r.extensions {
		out = append(out, ext)
	}
	return out
}
