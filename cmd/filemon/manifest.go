package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/filemon/pkg/filemon/checksum"
	"github.com/jamesainslie/filemon/pkg/filemon/filter"
	"github.com/jamesainslie/filemon/pkg/filemon/manifest"
	"github.com/jamesainslie/filemon/pkg/filemon/output"
)

var manifestCmd = &cobra.Command{
	Use:   "manifest",
	Short: "Inspect the manifest file",
}

var manifestShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the entries recorded in the manifest",
	Args:  cobra.NoArgs,
	RunE:  runManifestShow,
}

var manifestVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Recompute checksums and compare them with the manifest",
	Long: `Hash every file listed in the manifest and report entries whose file is
missing, whose checksum differs, or that were never hashed. The manifest is
not modified. The command fails when any entry does not match.`,
	Args: cobra.NoArgs,
	RunE: runManifestVerify,
}

// errVerifyFailed is returned when verification finds a difference.
var errVerifyFailed = errors.New("manifest does not match the folder")

var verifyAll bool

func init() {
	manifestVerifyCmd.Flags().BoolVar(&verifyAll, "all", false, "list matching entries too")

	manifestCmd.AddCommand(manifestShowCmd)
	manifestCmd.AddCommand(manifestVerifyCmd)
	rootCmd.AddCommand(manifestCmd)
}

// readManifest parses the configured manifest without creating it.
func readManifest() (*manifest.Store, []manifest.Line, []string, error) {
	opts := cfg.Options()
	if err := opts.Validate(); err != nil {
		return nil, nil, nil, err
	}
	rules, err := filter.New(opts)
	if err != nil {
		return nil, nil, nil, err
	}

	store := manifest.New(opts, rules)
	lines, parseErrs, err := store.Read()
	if err != nil {
		return nil, nil, nil, err
	}

	warnings := make([]string, 0, len(parseErrs))
	for _, e := range parseErrs {
		warnings = append(warnings, e.Error())
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].Path < lines[j].Path })
	return store, lines, warnings, nil
}

func runManifestShow(cmd *cobra.Command, _ []string) error {
	store, lines, warnings, err := readManifest()
	if err != nil {
		return err
	}

	root := filepath.Dir(store.Path())
	result := &output.Result{Source: root, Manifest: store.Path(), Warnings: warnings}
	for _, l := range lines {
		f := output.FileInfo{Path: l.Path, Checksum: l.Checksum}
		if l.Checksum == "" {
			f.Status = output.StatusPending
		}
		result.Files = append(result.Files, f)
	}
	fillSizes(root, result.Files)

	return render(result)
}

func runManifestVerify(cmd *cobra.Command, _ []string) error {
	store, lines, warnings, err := readManifest()
	if err != nil {
		return err
	}

	root := filepath.Dir(store.Path())
	result := &output.Result{Source: root, Manifest: store.Path(), Warnings: warnings}
	engine := checksum.New()

	failed := 0
	for _, l := range lines {
		f := verifyLine(engine, root, l)
		if f.Status != output.StatusOK {
			failed++
		} else if !verifyAll {
			continue
		}
		result.Files = append(result.Files, f)
	}
	fillSizes(root, result.Files)

	if err := render(result); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d entries differ", errVerifyFailed, failed, len(lines))
	}
	printInfo("All %d entries match.", len(lines))
	return nil
}

func verifyLine(engine *checksum.Engine, root string, l manifest.Line) output.FileInfo {
	f := output.FileInfo{Path: l.Path, Checksum: l.Checksum}
	path := filepath.Join(root, filepath.FromSlash(l.Path))

	if _, err := os.Stat(path); err != nil {
		f.Status = output.StatusMissing
		return f
	}
	if l.Checksum == "" {
		f.Status = output.StatusPending
		return f
	}

	actual, ok := engine.Digest(path)
	switch {
	case !ok:
		f.Status = output.StatusMissing
	case actual != l.Checksum:
		f.Status = output.StatusMismatch
		f.Actual = actual
	default:
		f.Status = output.StatusOK
	}
	return f
}
