// Package simextract implements the `sim extract` CLI mode (spec.md §6,
// SPEC_FULL.md's simextract module): a local-disk-only scan of the host's
// CoreSimulator DSC caches, split via `ipsw dyld split` and symsorted into
// the same symbols/ namespace as the OTA and IPSW pipelines. Per spec.md
// §9 Open Question (b), this mode has no metadata-store integration: it
// walks whatever runtimes are present on disk and uploads them directly,
// with no processing-state tracking or re-run idempotence beyond the
// symbol store's own content-addressed dedup.
package simextract

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/getsentry/symx/internal/extract"
	"github.com/getsentry/symx/internal/subproc"
	"github.com/getsentry/symx/internal/symbolupload"
	"github.com/pkg/errors"
)

// runner abstracts subproc.Runner for testability, mirroring the same
// small interface repeated in internal/otaupstream and internal/extract.
type runner interface {
	Run(ctx context.Context, dir, name string, args ...string) (subproc.Result, error)
}

const (
	runtimePrefix  = "com.apple.CoreSimulator.SimRuntime."
	dscFilePrefix  = "dyld_sim_shared_cache_"
	rootCachesPath = "/Library/Developer/CoreSimulator/Caches/dyld"
)

// ignoredDSCSuffixes are DSC-adjacent sidecar files that aren't the cache
// itself (grounded on the original's `_is_ignored_dsc_file`).
var ignoredDSCSuffixes = []string{".map", ".dylddata", ".atlas"}

// Runtime is one discovered CoreSimulator DSC runtime directory.
type Runtime struct {
	Arch         string
	BuildNumber  string
	MacOSVersion string
	OSName       string
	OSVersion    string
	Path         string
}

// BundleID constructs the symsorter bundle identifier for a simulator
// runtime (spec.md §9, bit-exact): "sim_{macos}_{os_version}_{build}_{arch}".
func (r Runtime) BundleID() string {
	return "sim_" + r.MacOSVersion + "_" + r.OSVersion + "_" + r.BuildNumber + "_" + r.Arch
}

// CachesPath resolves the host's simulator DSC cache root, falling back to
// the per-user location used before Xcode 16 moved caches to the shared
// /Library folder.
func CachesPath(homeDir string) (string, error) {
	if isDir(rootCachesPath) {
		return rootCachesPath, nil
	}
	userPath := filepath.Join(homeDir, rootCachesPath)
	if isDir(userPath) {
		return userPath, nil
	}
	return "", errors.Errorf("neither %s nor %s exists", rootCachesPath, userPath)
}

// FindRuntimes walks a caches root (as returned by CachesPath) for
// simulator runtime directories and the DSC files within them. Each
// runtime directory name encodes "SimRuntime.<os>-<major>-<minor>.<build>"
// and is expected to hold one dyld_sim_shared_cache_<arch> file per
// architecture. Only the first DSC file found per runtime supplies the
// runtime's Arch and bundle id; ExtractRuntime still splits every DSC file
// found.
func FindRuntimes(cachesRoot string) ([]Runtime, error) {
	buildEntries, err := os.ReadDir(cachesRoot)
	if err != nil {
		return nil, errors.Wrapf(err, "reading caches root %s", cachesRoot)
	}
	var runtimes []Runtime
	for _, buildEntry := range buildEntries {
		if buildEntry.Name() == ".DS_Store" || !buildEntry.IsDir() {
			continue
		}
		macosVersion := buildEntry.Name()
		runtimeRoot := filepath.Join(cachesRoot, macosVersion)
		runtimeEntries, err := os.ReadDir(runtimeRoot)
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s", runtimeRoot)
		}
		for _, runtimeEntry := range runtimeEntries {
			if !runtimeEntry.IsDir() || !strings.HasPrefix(runtimeEntry.Name(), runtimePrefix) {
				continue
			}
			rt, ok := parseRuntimeDir(macosVersion, runtimeEntry.Name())
			if !ok {
				continue
			}
			rt.Path = filepath.Join(runtimeRoot, runtimeEntry.Name())
			dscEntries, err := os.ReadDir(rt.Path)
			if err != nil {
				return nil, errors.Wrapf(err, "reading %s", rt.Path)
			}
			for _, dscEntry := range dscEntries {
				arch, ok := strings.CutPrefix(dscEntry.Name(), dscFilePrefix)
				if !ok {
					continue
				}
				rt.Arch = arch
				runtimes = append(runtimes, rt)
				break
			}
		}
	}
	return runtimes, nil
}

// parseRuntimeDir extracts build number and OS name/version from a
// "SimRuntime.<OSName>-<major>-<minor>.<build>" directory name.
func parseRuntimeDir(macosVersion, name string) (Runtime, bool) {
	splits := strings.Split(name, ".")
	if len(splits) < 6 {
		return Runtime{}, false
	}
	build := splits[5]
	osInfo := strings.Split(splits[4], "-")
	if len(osInfo) < 3 {
		return Runtime{}, false
	}
	return Runtime{
		BuildNumber:  build,
		MacOSVersion: macosVersion,
		OSName:       strings.ToLower(osInfo[0]),
		OSVersion:    osInfo[1] + "." + osInfo[2],
	}, true
}

func isIgnoredDSCFile(name string) bool {
	if !strings.HasPrefix(name, dscFilePrefix) {
		return true
	}
	for _, suffix := range ignoredDSCSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// Extractor runs the split-and-symsort step over discovered runtimes and
// uploads the result, sharing the `ipsw dyld split` / symsorter tooling
// with internal/extract rather than re-implementing it.
type Extractor struct {
	Runner     runner
	Symsorter  *extract.Symsorter
	Uploader   *symbolupload.Uploader
	ScratchDir string
}

// ExtractRuntime splits every non-ignored DSC file under runtime.Path and
// symsorts the results into one bundle directory, then uploads the bundle
// tree and its index.
func (e *Extractor) ExtractRuntime(ctx context.Context, rt Runtime) error {
	outputDir := filepath.Join(e.ScratchDir, "sim-symsort", rt.BundleID())
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return errors.Wrap(err, "creating symsort output dir")
	}

	entries, err := os.ReadDir(rt.Path)
	if err != nil {
		return errors.Wrapf(err, "reading runtime dir %s", rt.Path)
	}
	var splitAny bool
	for _, entry := range entries {
		if entry.IsDir() || isIgnoredDSCFile(entry.Name()) {
			continue
		}
		dscPath := filepath.Join(rt.Path, entry.Name())
		splitDir := filepath.Join(e.ScratchDir, "sim-split", rt.BundleID(), entry.Name())
		if err := os.MkdirAll(splitDir, 0o755); err != nil {
			return errors.Wrap(err, "creating split output dir")
		}
		res, err := e.Runner.Run(ctx, "", "ipsw", "dyld", "split", dscPath, "--output", splitDir)
		if err != nil {
			return errors.Wrapf(err, "invoking ipsw dyld split on %s", dscPath)
		}
		if res.ExitCode != 0 {
			return errors.Errorf("ipsw dyld split on %s exited %d: %s", dscPath, res.ExitCode, res.Stderr)
		}
		if err := e.Symsorter.Sort(ctx, splitDir, outputDir, rt.OSName, rt.BundleID(), true); err != nil {
			return errors.Wrapf(err, "symsorting %s", dscPath)
		}
		splitAny = true
	}
	if !splitAny {
		return nil
	}

	stats, err := e.Uploader.UploadTree(ctx, outputDir, rt.OSName)
	if err != nil {
		return errors.Wrap(err, "uploading simulator symbols")
	}
	_ = stats // observability only; no metadata store to record it against.

	indexPath := filepath.Join(outputDir, rt.OSName, "bundles", rt.BundleID())
	if data, err := os.ReadFile(indexPath); err == nil {
		if _, err := e.Uploader.UploadBundleIndex(ctx, rt.OSName, rt.BundleID(), data); err != nil {
			return errors.Wrap(err, "uploading bundle index")
		}
	}
	return nil
}
