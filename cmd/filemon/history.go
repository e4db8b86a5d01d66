package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jamesainslie/filemon/pkg/filemon/config"
	"github.com/jamesainslie/filemon/pkg/filemon/history"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View passes that changed the manifest",
	Long: `Every pass that created, updated or deleted a tracked file is recorded
with the paths it changed. Records older than history.retention_days are
removed on startup or with 'filemon history clean'.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

var historyShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show the changes of one pass",
	Long:  `Display the changes recorded for a pass. The ID may be abbreviated to any unique prefix.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove records older than the retention period",
	Args:  cobra.NoArgs,
	RunE:  runHistoryClean,
}

var historyLimit int

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 20, "maximum number of records to show")

	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyCleanCmd)
	rootCmd.AddCommand(historyCmd)
}

func openHistory() (*history.Log, error) {
	path := cfg.History.Path
	if path == "" {
		path = config.DefaultHistoryDir()
	}
	h, err := history.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	return h, nil
}

func runHistory(cmd *cobra.Command, _ []string) error {
	h, err := openHistory()
	if err != nil {
		return err
	}

	records, err := h.List(historyLimit)
	if err != nil {
		return fmt.Errorf("failed to list history: %w", err)
	}
	if len(records) == 0 {
		printInfo("No history records found.")
		printInfo("Run 'filemon scan' or 'filemon watch' to record passes.")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tWHEN\tCREATED\tUPDATED\tDELETED\tENTRIES\tMANIFEST")
	for _, rec := range records {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			rec.ID,
			humanize.Time(rec.Timestamp),
			rec.Summary.Created,
			rec.Summary.Updated,
			rec.Summary.Deleted,
			rec.Summary.Entries,
			rec.Manifest,
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	printInfo("\nShowing %d records. Use 'filemon history show <id>' for details.", len(records))
	return nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	h, err := openHistory()
	if err != nil {
		return err
	}

	rec, err := h.Get(args[0])
	if err != nil {
		return err
	}

	fmt.Println("Pass Details")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("ID:        %s\n", rec.ID)
	fmt.Printf("Timestamp: %s (%s)\n", rec.Timestamp.Local().Format("2006-01-02 15:04:05 MST"), humanize.Time(rec.Timestamp))
	fmt.Printf("Manifest:  %s\n", rec.Manifest)
	fmt.Printf("Entries:   %s\n", humanize.Comma(int64(rec.Summary.Entries)))
	fmt.Printf("Digests:   %d in %s\n", rec.Summary.Digests, rec.Summary.Duration)

	if len(rec.Changes) == 0 {
		return nil
	}

	fmt.Println()
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tPATH\tCHECKSUM")
	for _, ch := range rec.Changes {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", ch.Type, ch.Path, ch.Checksum)
	}
	return tw.Flush()
}

func runHistoryClean(cmd *cobra.Command, _ []string) error {
	h, err := openHistory()
	if err != nil {
		return err
	}

	days := cfg.History.RetentionDays
	if days <= 0 {
		days = config.DefaultHistoryRetentionDays
	}

	printInfo("Cleaning history records older than %d days...", days)
	removed, err := h.Cleanup(days)
	if err != nil {
		return fmt.Errorf("failed to clean history: %w", err)
	}
	printInfo("Removed %d records.", removed)
	return nil
}
