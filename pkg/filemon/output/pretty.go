package output

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// PrettyFormatter formats output with colors and styling using lipgloss.
type PrettyFormatter struct {
	// Now anchors relative times; zero means time.Now.
	Now time.Time
}

// Format writes the formatted output to the buffer.
func (f *PrettyFormatter) Format(w *bytes.Buffer, r *Result) error {
	w.WriteString(f.formatHeader(r))
	w.WriteString("\n")
	w.WriteString(f.formatTable(r))
	w.WriteString(f.formatFooter(r))

	if len(r.Warnings) > 0 {
		w.WriteString("\n")
		w.WriteString(WarningStyle.Bold(true).Render("Warnings:"))
		w.WriteString("\n")
		for _, warning := range r.Warnings {
			w.WriteString(WarningStyle.Render("  " + warning))
			w.WriteString("\n")
		}
	}
	return nil
}

func (f *PrettyFormatter) now() time.Time {
	if f.Now.IsZero() {
		return time.Now()
	}
	return f.Now
}

func (f *PrettyFormatter) formatHeader(r *Result) string {
	lines := []string{
		LabelStyle.Render("Folder:") + " " + ValueStyle.Render(r.Source),
		LabelStyle.Render("Manifest:") + " " + ValueStyle.Render(r.Manifest),
	}

	if s := r.Stats; s != nil {
		if s.Skipped {
			lines = append(lines, WarningStyle.Render("Folder missing, pass skipped"))
		} else {
			lines = append(lines, fmt.Sprintf("%s %s  %s",
				LabelStyle.Render("Pass:"),
				ValueStyle.Render(fmt.Sprintf("%d digests in %s", s.Digests, formatDuration(s.Duration))),
				f.formatChanges(s),
			))
		}
	}

	return HeaderBox.Render(strings.Join(lines, "\n"))
}

func (f *PrettyFormatter) formatChanges(s *PassStats) string {
	if s.Created+s.Updated+s.Deleted == 0 {
		return MutedStyle.Render("no changes")
	}

	var parts []string
	if s.Created > 0 {
		parts = append(parts, statusStyle(StatusCreated).Render(fmt.Sprintf("+%d", s.Created)))
	}
	if s.Updated > 0 {
		parts = append(parts, statusStyle(StatusUpdated).Render(fmt.Sprintf("~%d", s.Updated)))
	}
	if s.Deleted > 0 {
		parts = append(parts, statusStyle(StatusDeleted).Render(fmt.Sprintf("-%d", s.Deleted)))
	}
	return strings.Join(parts, " ")
}

func (f *PrettyFormatter) formatTable(r *Result) string {
	if len(r.Files) == 0 {
		return MutedStyle.Render("  No tracked files\n")
	}

	statusWidth := len("STATUS")
	for _, file := range r.Files {
		if len(file.Status) > statusWidth {
			statusWidth = len(file.Status)
		}
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("  %s  %s  %s  %s\n",
		TableHeaderStyle.Render(padRight("STATUS", statusWidth)),
		TableHeaderStyle.Render(padRight("CHECKSUM", 32)),
		TableHeaderStyle.Render(padRight("MODIFIED", 16)),
		TableHeaderStyle.Render("PATH"),
	))

	now := f.now()
	for _, file := range r.Files {
		sum := file.Checksum
		if sum == "" {
			sum = "-"
		}
		modified := "-"
		if !file.ModTime.IsZero() {
			modified = humanize.RelTime(file.ModTime, now, "ago", "from now")
		}
		sb.WriteString(fmt.Sprintf("  %s  %s  %s  %s\n",
			statusStyle(file.Status).Render(padRight(string(file.Status), statusWidth)),
			ChecksumStyle.Render(padRight(sum, 32)),
			MutedStyle.Render(padRight(modified, 16)),
			PathStyle.Render(file.Path),
		))
		if file.Status == StatusMismatch && file.Actual != "" {
			sb.WriteString(MutedStyle.Render(fmt.Sprintf("  %s  on disk: %s\n", padRight("", statusWidth), file.Actual)))
		}
	}
	return sb.String()
}

func (f *PrettyFormatter) formatFooter(r *Result) string {
	parts := []string{
		LabelStyle.Render("Files:") + " " + ValueStyle.Render(humanize.Comma(int64(len(r.Files)))),
	}
	if total := r.TotalSize(); total > 0 {
		parts = append(parts, LabelStyle.Render("Total:")+" "+ValueStyle.Render(humanize.IBytes(uint64(total))))
	}
	for _, s := range []Status{StatusMismatch, StatusMissing, StatusPending} {
		if n := r.Count(s); n > 0 {
			parts = append(parts, statusStyle(s).Render(fmt.Sprintf("%d %s", n, s)))
		}
	}
	parts = append(parts, MutedStyle.Render("Use -o plain for unformatted output"))

	return FooterBox.Render(strings.Join(parts, "  "))
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

// formatDuration formats a duration in a human-friendly way.
func formatDuration(d time.Duration) string {
	sec := d.Seconds()
	if sec < 1 {
		return fmt.Sprintf("%.0fms", sec*1000)
	}
	if sec < 60 {
		return fmt.Sprintf("%.1fs", sec)
	}
	minutes := int(sec) / 60
	seconds := int(sec) % 60
	if minutes < 60 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
}

func init() {
	Register("pretty", func() Formatter { return &PrettyFormatter{} })
}

var _ Formatter = (*PrettyFormatter)(nil)
