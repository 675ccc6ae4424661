package main

import (
	"github.com/getsentry/symx/internal/extract"
	"github.com/getsentry/symx/internal/metastore"
	"github.com/getsentry/symx/internal/mirror"
	"github.com/getsentry/symx/internal/otaupstream"
	"github.com/getsentry/symx/internal/pipeline"
	"github.com/getsentry/symx/internal/subproc"
	"github.com/getsentry/symx/internal/symbolupload"
	"github.com/getsentry/symx/internal/symxconfig"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var otaCmd = &cobra.Command{
	Use:   "ota",
	Short: "OTA artifact pipeline commands",
}

var otaMirrorCmd = &cobra.Command{
	Use:   "mirror",
	Short: "Run the index and mirror stages for OTA",
	RunE:  runOtaMirror,
}

var otaExtractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Run the extract stage for OTA",
	RunE:  runOtaExtract,
}

func init() {
	otaCmd.AddCommand(otaMirrorCmd)
	otaCmd.AddCommand(otaExtractCmd)
}

// runOtaMirror runs the OTA index stage (spec.md §4.2: `ipsw download ota`
// for every platform/channel, merged into the metadata document) followed
// by the mirror stage's pipeline.Driver loop, matching the CLI table's
// "Run index + mirror stage for OTA" contract.
func runOtaMirror(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	cfg, err := symxconfig.Load(globalFlags.config)
	if err != nil {
		return err
	}
	merged := symxconfig.Merge(cfg, globalFlags.storage, globalFlags.timeout, 0)
	logger := newLogger("ota-mirror")
	id := runID()

	meta := metastore.NewOtaStore(store)
	fetcher := &otaupstream.Fetcher{Runner: subproc.Runner{}, Logger: logger}
	incoming, err := fetcher.Retrieve(ctx)
	if err != nil {
		return errors.Wrap(err, "retrieving OTA index")
	}
	if _, err := meta.MergeFromUpstream(ctx, incoming); err != nil {
		return errors.Wrap(err, "merging OTA index")
	}

	scratch, err := scratchDir()
	if err != nil {
		return err
	}
	stage := &mirror.OtaStage{
		Meta: meta,
		Mirrorer: &mirror.Mirrorer{
			Store:      store,
			Downloader: &mirror.Downloader{Retries: mirror.DefaultRetries, Logger: logger, ShowProgress: globalFlags.verbose},
			ScratchDir: scratch,
		},
		Logger: logger,
		RunID:  id,
	}
	driver := &pipeline.Driver{Stage: stage, Budget: merged.Timeout(), Logger: logger}
	return driver.Run(ctx)
}

// runOtaExtract runs the OTA extract stage's pipeline.Driver loop over
// MIRRORED sources (spec.md §4.4).
func runOtaExtract(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	cfg, err := symxconfig.Load(globalFlags.config)
	if err != nil {
		return err
	}
	merged := symxconfig.Merge(cfg, globalFlags.storage, globalFlags.timeout, 0)
	logger := newLogger("ota-extract")
	id := runID()

	scratch, err := scratchDir()
	if err != nil {
		return err
	}
	meta := metastore.NewOtaStore(store)
	// Runner carries no Timeout of its own: only `ipsw extract` on IPSW
	// gets a hard 20-minute kill (applied internally by Procedure), every
	// other subprocess here is non-preemptive per spec.md §5.
	runner := subproc.Runner{}
	stage := &extract.OtaStage{
		Meta:       meta,
		Store:      store,
		Procedure:  &extract.Procedure{Runner: runner, Mounter: extract.NewMounter(runner)},
		Uploader:   &symbolupload.Uploader{Store: store, Concurrency: merged.UploadConcurrency, Logger: logger},
		ScratchDir: scratch,
		Logger:     logger,
		RunID:      id,
	}
	driver := &pipeline.Driver{Stage: stage, Budget: merged.Timeout(), Logger: logger}
	return driver.Run(ctx)
}
