package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/filemon/pkg/filemon/monitor"
	"github.com/jamesainslie/filemon/pkg/filemon/output"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one pass and update the manifest",
	Long: `Load the manifest, reconcile it against the folder once and write it back
if anything changed. The report lists created, updated and deleted files.`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

var scanChangesOnly bool

func init() {
	scanCmd.Flags().BoolVar(&scanChangesOnly, "changes", false, "only list files changed by this pass")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, _ []string) error {
	stack, err := monitor.FromConfig(cfg)
	if err != nil {
		return err
	}
	defer stack.Close() //nolint:errcheck // read path only after the pass

	c := stack.Coordinator
	load := c.Load()
	report := c.Rescan()

	result := output.FromEntries(c.Root(), c.ManifestPath(), c.Entries()).WithReport(report)
	if load.Malformed > 0 {
		result.Warnings = append(result.Warnings, fmt.Sprintf("%d manifest lines could not be parsed", load.Malformed))
	}
	if c.HasChanges() {
		result.Warnings = append(result.Warnings, "manifest could not be written, see the log for details")
	}
	if scanChangesOnly {
		result.Files = changedOnly(result.Files)
	}
	fillSizes(c.Root(), result.Files)

	return render(result)
}

func changedOnly(files []output.FileInfo) []output.FileInfo {
	changed := files[:0]
	for _, f := range files {
		if f.Status != output.StatusTracked {
			changed = append(changed, f)
		}
	}
	return changed
}

// fillSizes stats every file that still exists under root.
func fillSizes(root string, files []output.FileInfo) {
	for i := range files {
		if files[i].Status == output.StatusDeleted {
			continue
		}
		info, err := os.Stat(filepath.Join(root, filepath.FromSlash(files[i].Path)))
		if err != nil {
			continue
		}
		files[i].Size = info.Size()
		if files[i].ModTime.IsZero() {
			files[i].ModTime = info.ModTime()
		}
	}
}
