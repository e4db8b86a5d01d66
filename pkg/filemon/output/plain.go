package output

import (
	"bytes"
	"text/tabwriter"
)

// PlainFormatter writes an aligned STATUS/CHECKSUM/PATH table without
// styling, for scripts.
type PlainFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PlainFormatter) Format(w *bytes.Buffer, r *Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)

	if _, err := tw.Write([]byte("STATUS\tCHECKSUM\tPATH\n")); err != nil {
		return err
	}
	for _, file := range r.Files {
		status := string(file.Status)
		if status == "" {
			status = "-"
		}
		sum := file.Checksum
		if sum == "" {
			sum = "-"
		}
		if _, err := tw.Write([]byte(status + "\t" + sum + "\t" + file.Path + "\n")); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// PathsFormatter writes one path per line.
type PathsFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PathsFormatter) Format(w *bytes.Buffer, r *Result) error {
	for _, file := range r.Files {
		w.WriteString(file.Path)
		w.WriteByte('\n')
	}
	return nil
}

func init() {
	Register("plain", func() Formatter { return &PlainFormatter{} })
	Register("paths", func() Formatter { return &PathsFormatter{} })
}

var (
	_ Formatter = (*PlainFormatter)(nil)
	_ Formatter = (*PathsFormatter)(nil)
)
