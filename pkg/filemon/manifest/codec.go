package manifest

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jamesainslie/filemon/pkg/filemon/cache"
)

// Legacy sentinel lines. They are accepted on read and never written.
const (
	SentinelBegin = "--BEGIN"
	SentinelEnd   = "--END"
)

const (
	delimiterColon = ':'
	delimiterSpace = ' '

	// maxLineSize bounds a single manifest line.
	maxLineSize = 1024 * 1024
)

// ErrMalformedLine is returned for a line that has a delimiter but no path.
var ErrMalformedLine = errors.New("malformed manifest line")

// Line is one parsed manifest entry.
type Line struct {
	// Number is the 1-based line number in the source.
	Number int

	// Path is the cache key form of the recorded path.
	Path string

	// Checksum is the recorded digest, empty when none was recorded.
	Checksum string

	// Legacy is true when the line used the "checksum path" form.
	Legacy bool
}

// ParseLine parses a single manifest line. ok is false for lines that carry
// no entry: blank lines, sentinels and lines without any delimiter.
//
// A line containing a colon is split on the first colon into path and
// checksum. Otherwise it is split on the first space into checksum and path.
func ParseLine(s string) (line Line, ok bool, err error) {
	s = strings.TrimSuffix(s, "\r")
	if s == "" || s == SentinelBegin || s == SentinelEnd {
		return Line{}, false, nil
	}

	var rawPath, sum string
	if i := strings.IndexByte(s, delimiterColon); i >= 0 {
		rawPath, sum = s[:i], s[i+1:]
	} else if i := strings.IndexByte(s, delimiterSpace); i >= 0 {
		sum, rawPath = s[:i], s[i+1:]
		line.Legacy = true
	} else {
		return Line{}, false, nil
	}

	line.Path = cache.Key(rawPath)
	line.Checksum = strings.TrimSpace(sum)
	if line.Path == "" {
		return Line{}, false, fmt.Errorf("%w: %q has no path", ErrMalformedLine, s)
	}
	return line, true, nil
}

// Parse reads every entry from r. Malformed lines are reported in errs and
// skipped; they never stop the parse. A read failure is appended last.
func Parse(r io.Reader) (lines []Line, errs []error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	n := 0
	for scanner.Scan() {
		n++
		text := scanner.Text()
		if n == 1 {
			text = strings.TrimPrefix(text, "\ufeff")
		}

		line, ok, err := ParseLine(text)
		if err != nil {
			errs = append(errs, fmt.Errorf("line %d: %w", n, err))
			continue
		}
		if !ok {
			continue
		}
		line.Number = n
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		errs = append(errs, fmt.Errorf("reading manifest: %w", err))
	}
	return lines, errs
}

// Format serializes entries as "path:checksum" lines separated by "\n",
// without a trailing newline. Unhashed entries are written with an empty
// checksum.
func Format(entries []cache.FileEntry) []byte {
	var buf bytes.Buffer
	buf.Grow(len(entries) * 64)
	for i, e := range entries {
		if i > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(cache.Key(e.Path))
		buf.WriteByte(delimiterColon)
		buf.WriteString(e.Sum())
	}
	return buf.Bytes()
}
