// Command symx mirrors Apple firmware OTA/IPSW artifacts and extracts
// dyld_shared_cache debug symbols into a symbol store (spec.md §1).
package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/getsentry/symx/internal/objstore"
	"github.com/getsentry/symx/internal/subproc"
	"github.com/getsentry/symx/internal/symxconfig"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// globalFlags holds the flag values shared across every subcommand,
// mirroring `cmd/oss-rebuild/main.go`'s package-level flag variables but
// bound to cobra's PersistentFlags instead of the stdlib flag package,
// since symx's surface is multi-command from the start.
var globalFlags struct {
	storage string
	timeout int
	verbose bool
	config  string
}

var rootCmd = &cobra.Command{
	Use:           "symx",
	Short:         "Mirror Apple firmware artifacts and extract dyld_shared_cache symbols",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "extract" || cmd.Name() == "mirror" || cmd.Name() == "meta-sync" {
			if err := preflightIpsw(cmd.Context()); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&globalFlags.storage, "storage", "s", "", "storage URI, gs://[project@]bucket")
	rootCmd.PersistentFlags().IntVarP(&globalFlags.timeout, "timeout", "t", 0, "timeout in minutes triggering an ordered shutdown after it elapsed")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.verbose, "verbose", "v", false, "verbose logging")
	rootCmd.PersistentFlags().StringVarP(&globalFlags.config, "config", "c", "", "optional YAML config file supplying flag defaults")

	rootCmd.AddCommand(otaCmd)
	rootCmd.AddCommand(ipswCmd)
	rootCmd.AddCommand(simCmd)
}

// preflightIpsw runs `ipsw version` once before any subcommand that shells
// out to the `ipsw` binary, so a missing or broken toolchain fails fast
// rather than deep into a run (SPEC_FULL.md's SUPPLEMENTED FEATURES: "ipsw
// version preflight", grounded on the original always doing this at
// process start).
func preflightIpsw(ctx context.Context) error {
	r := subproc.Runner{}
	res, err := r.Run(ctx, "", "ipsw", "version")
	if err != nil {
		return errors.Wrap(err, "running ipsw version preflight")
	}
	if res.ExitCode != 0 {
		return errors.Errorf("ipsw version exited %d: %s", res.ExitCode, res.Stderr)
	}
	return nil
}

// newLogger builds a stage logger, coloring warning/error lines when
// attached to an interactive terminal and -v is set (AMBIENT STACK:
// fatih/color usage alongside plain log.Logger).
func newLogger(prefix string) *log.Logger {
	out := os.Stderr
	if globalFlags.verbose && isTerminal(out) {
		return log.New(color.Output, fmt.Sprintf("[%s] ", prefix), log.LstdFlags)
	}
	return log.New(out, fmt.Sprintf("[%s] ", prefix), log.LstdFlags)
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	return err == nil && (info.Mode()&os.ModeCharDevice) != 0
}

// openStore resolves --storage/--config into a production object store.
func openStore(ctx context.Context) (objstore.Store, error) {
	cfg, err := symxconfig.Load(globalFlags.config)
	if err != nil {
		return nil, err
	}
	merged := symxconfig.Merge(cfg, globalFlags.storage, globalFlags.timeout, 0)
	if merged.Storage == "" {
		return nil, errors.New("no storage URI given: pass --storage or set it in the config file")
	}
	uri, err := objstore.ParseURI(merged.Storage)
	if err != nil {
		return nil, err
	}
	return objstore.NewGCSStore(ctx, uri, nil)
}

// runID synthesizes an explicit per-invocation workflow identifier,
// threaded through every stage rather than read from the environment
// (DESIGN NOTES: "last_run" redesign).
func runID() int {
	id := uuid.New()
	return int(int32(binary.BigEndian.Uint32(id[:4])))
}

// scratchDir creates and returns a process-local scratch root, unique per
// invocation so concurrent workers on the same host never collide (spec.md
// §5: "local scratch directory is per-process and never shared").
func scratchDir() (string, error) {
	dir := filepath.Join(os.TempDir(), "symx-"+uuid.New().String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, "creating scratch directory")
	}
	return dir, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
