package main

import (
	"github.com/getsentry/symx/internal/appledb"
	"github.com/getsentry/symx/internal/extract"
	"github.com/getsentry/symx/internal/metastore"
	"github.com/getsentry/symx/internal/mirror"
	"github.com/getsentry/symx/internal/pipeline"
	"github.com/getsentry/symx/internal/subproc"
	"github.com/getsentry/symx/internal/symbolupload"
	"github.com/getsentry/symx/internal/symxconfig"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var ipswCmd = &cobra.Command{
	Use:   "ipsw",
	Short: "IPSW artifact pipeline commands",
}

var ipswMetaSyncCmd = &cobra.Command{
	Use:   "meta-sync",
	Short: "Run AppleDB index into IPSW metadata",
	RunE:  runIpswMetaSync,
}

var ipswMirrorCmd = &cobra.Command{
	Use:   "mirror",
	Short: "Run the mirror stage for IPSW",
	RunE:  runIpswMirror,
}

var ipswExtractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Run the extract stage for IPSW",
	RunE:  runIpswExtract,
}

func init() {
	ipswCmd.AddCommand(ipswMetaSyncCmd)
	ipswCmd.AddCommand(ipswMirrorCmd)
	ipswCmd.AddCommand(ipswExtractCmd)
}

// runIpswMetaSync runs the AppleDB index stage (spec.md §4.2, IPSW side).
func runIpswMetaSync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	logger := newLogger("ipsw-meta-sync")

	syncer := &appledb.Syncer{
		Meta:    metastore.NewIpswStore(store),
		Imports: appledb.NewStore(store),
		Logger:  logger,
	}
	return errors.Wrap(syncer.Sync(ctx), "syncing AppleDB")
}

// runIpswMirror runs the IPSW mirror stage's pipeline.Driver loop.
func runIpswMirror(cmd *cobra.Command, args []string) error {
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
	logger := newLogger("ipsw-mirror")
	id := runID()

	scratch, err := scratchDir()
	if err != nil {
		return err
	}
	stage := &mirror.IpswStage{
		Meta: metastore.NewIpswStore(store),
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

// runIpswExtract runs the IPSW extract stage's pipeline.Driver loop
// (supplemented CLI entrypoint, see SPEC_FULL.md's AMBIENT STACK CLI
// bullet).
func runIpswExtract(cmd *cobra.Command, args []string) error {
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
	logger := newLogger("ipsw-extract")
	id := runID()

	scratch, err := scratchDir()
	if err != nil {
		return err
	}
	// Runner carries no Timeout of its own: ExtractIPSW applies the
	// 20-minute hard kill to `ipsw extract` internally via its own
	// context, every other subprocess here is non-preemptive (spec.md §5).
	runner := subproc.Runner{}
	procedure := &extract.Procedure{Runner: runner, Mounter: extract.NewMounter(runner)}
	stage := &extract.IpswStage{
		Meta:       metastore.NewIpswStore(store),
		Store:      store,
		Procedure:  procedure,
		Symsorter:  &extract.Symsorter{Runner: runner},
		Uploader:   &symbolupload.Uploader{Store: store, Concurrency: merged.UploadConcurrency, Logger: logger},
		ScratchDir: scratch,
		Logger:     logger,
		RunID:      id,
	}
	driver := &pipeline.Driver{Stage: stage, Budget: merged.Timeout(), Logger: logger}
	return driver.Run(ctx)
}
