package main

import (
	"os"

	"github.com/getsentry/symx/internal/extract"
	"github.com/getsentry/symx/internal/simextract"
	"github.com/getsentry/symx/internal/subproc"
	"github.com/getsentry/symx/internal/symbolupload"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var simCmd = &cobra.Command{
	Use:   "sim",
	Short: "Simulator runtime commands",
}

var simExtractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract simulator runtime DSCs (local disk, untracked by metadata)",
	RunE:  runSimExtract,
}

func init() {
	simCmd.AddCommand(simExtractCmd)
}

// runSimExtract implements `sim extract` (spec.md §6, §9 Open Question
// (b)): a local-disk-only scan of the host's CoreSimulator caches with no
// metadata store integration, unlike every other subcommand here.
func runSimExtract(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	logger := newLogger("sim-extract")

	home, err := os.UserHomeDir()
	if err != nil {
		return errors.Wrap(err, "resolving home directory")
	}
	cachesRoot, err := simextract.CachesPath(home)
	if err != nil {
		return errors.Wrap(err, "locating simulator caches")
	}
	runtimes, err := simextract.FindRuntimes(cachesRoot)
	if err != nil {
		return errors.Wrap(err, "scanning simulator runtimes")
	}

	scratch, err := scratchDir()
	if err != nil {
		return err
	}
	runner := subproc.Runner{}
	e := &simextract.Extractor{
		Runner:     runner,
		Symsorter:  &extract.Symsorter{Runner: runner},
		Uploader:   &symbolupload.Uploader{Store: store, Logger: logger},
		ScratchDir: scratch,
	}
	for _, rt := range runtimes {
		if err := e.ExtractRuntime(ctx, rt); err != nil {
			logger.Printf("extracting runtime %s failed: %v", rt.BundleID(), err)
			continue
		}
	}
	return nil
}
