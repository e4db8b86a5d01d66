package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/filemon/pkg/filemon/config"
)

var (
	cfgFile      string
	outputFormat string
	verbose      bool
	quiet        bool

	// cfg is loaded by the root PersistentPreRunE.
	cfg *config.Config

	rootCmd = &cobra.Command{
		Use:   "filemon",
		Short: "Track content checksums of a folder",
		Long: `filemon keeps a manifest of "path:checksum" lines for every tracked file
in a folder and updates it as files are created, modified and deleted.

Examples:
  filemon scan                        # One pass, update the manifest
  filemon watch --events              # Keep the manifest current, print changes
  filemon manifest verify             # Check recorded checksums against disk
  filemon -r /srv -f /public -x .js scan
  filemon history                     # Passes that changed the manifest`,
		SilenceUsage:      true,
		PersistentPreRunE: bootstrap,
	}
)

// flagBindings maps configuration keys to root persistent flags.
var flagBindings = map[string]string{
	"content_root":  "content-root",
	"folder_path":   "folder",
	"extensions":    "ext",
	"output_file":   "output-file",
	"exclude":       "exclude",
	"ignore":        "ignore",
	"logging.level": "log-level",
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: ~/.config/filemon/config.yaml)")
	flags.StringP("content-root", "r", "", "base directory the folder is resolved against")
	flags.StringP("folder", "f", "", "folder to monitor, relative to the content root")
	flags.StringSliceP("ext", "x", nil, "file extensions to track (can be specified multiple times)")
	flags.String("output-file", "", "manifest file name inside the folder")
	flags.StringSliceP("exclude", "e", nil, "sub-directories that are never tracked")
	flags.StringSlice("ignore", nil, "glob patterns for file names that are never tracked")
	flags.String("log-level", "", "log file level (debug, info, warn, error)")
	flags.StringVarP(&outputFormat, "output", "o", "pretty", "output format: "+formatList())
	flags.BoolVarP(&verbose, "verbose", "v", false, "log to stderr at debug level")
	flags.BoolVarP(&quiet, "quiet", "q", false, "minimal output")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// printInfo prints a message if quiet mode is not enabled.
func printInfo(format string, args ...interface{}) {
	if !quiet {
		fmt.Printf(format+"\n", args...)
	}
}

// printError prints an error message to stderr.
func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
