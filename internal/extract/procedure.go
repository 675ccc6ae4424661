package extract

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/getsentry/symx/internal/subproc"
	"github.com/pkg/errors"
)

// runner abstracts subproc.Runner for testability (mirrors
// internal/otaupstream's runner interface).
type runner interface {
	Run(ctx context.Context, dir, name string, args ...string) (subproc.Result, error)
}

// mounter abstracts the host's DMG/image mounter (hdiutil on macOS) so
// tests can fake mount/unmount without touching real disks.
type mounter interface {
	Mount(ctx context.Context, imagePath string) (mountPoint string, err error)
	Unmount(ctx context.Context, mountPoint string) error
}

// IpswExtractTimeout is the hard kill timeout for `ipsw extract` on IPSW
// (spec.md §4.4: it can hang on a mounter prompt).
const IpswExtractTimeout = 20 * time.Minute

// patchedDMGPattern matches `ipsw ota patch`'s stderr lines naming emitted
// DMGs (spec.md §6, bit-exact contract: "Patching <name> to <path>").
var patchedDMGPattern = regexp.MustCompile(`Patching (\S+) to (\S+)`)

// Outcome classifies one extraction attempt's result.
type Outcome int

const (
	// Extracted indicates at least one DSC was found and split successfully.
	Extracted Outcome = iota
	// PartialUpdate indicates a legacy-OTA zip with no DSC payload — not an
	// error, must not be retried forever (spec.md §4.4).
	PartialUpdate
	// NoDSCFound indicates zero DSC search results (DSC_EXTRACTION_FAILED).
	NoDSCFound
	// AllSplitsFailed indicates DSCs were found but every split attempt failed.
	AllSplitsFailed
)

// Procedure runs the platform-specific DSC extraction procedure and split
// step of spec.md §4.4.
type Procedure struct {
	Runner  runner
	Mounter mounter
}

// Result is the outcome of one extraction run, including whichever split
// output directories succeeded (so the caller can upload them even under
// partial split failure).
type Result struct {
	Outcome    Outcome
	SplitDirs  []string // output directories with at least one split binary
	FailedArch []string // architectures whose split command failed
}

// ExtractCryptexOTA handles newer iOS/tvOS/watchOS OTAs whose DSC lives in
// a cryptex disk image (spec.md §4.4, branch 1): patch the zip into one or
// more DMGs, mount each, locate and split its DSCs, detach.
func (p *Procedure) ExtractCryptexOTA(ctx context.Context, zipPath, scratchDir string) (Result, error) {
	patchDir := filepath.Join(scratchDir, "patch")
	if err := os.MkdirAll(patchDir, 0o755); err != nil {
		return Result{}, errors.Wrap(err, "creating patch scratch dir")
	}
	res, err := p.Runner.Run(ctx, "", "ipsw", "ota", "patch", zipPath, "--output", patchDir)
	if err != nil {
		return Result{}, errors.Wrap(err, "invoking ipsw ota patch")
	}
	if res.ExitCode != 0 {
		return Result{}, errors.Errorf("ipsw ota patch exited %d: %s", res.ExitCode, res.Stderr)
	}
	dmgs := parsePatchedDMGs(string(res.Stderr))
	if len(dmgs) == 0 {
		return Result{Outcome: NoDSCFound}, nil
	}
	var all []DSCFile
	splitBase := filepath.Join(scratchDir, "split")
	mountRoots := map[string]string{}
	for _, dmg := range dmgs {
		mountPoint, err := p.Mounter.Mount(ctx, dmg)
		if err != nil {
			return Result{}, errors.Wrapf(err, "mounting %s", dmg)
		}
		defer p.Mounter.Unmount(ctx, mountPoint)
		found := FindDSCs(mountPoint, fileExists)
		for _, f := range found {
			mountRoots[f.Path] = mountPoint
		}
		all = append(all, found...)
	}
	if len(all) == 0 {
		return Result{Outcome: NoDSCFound}, nil
	}
	return p.splitAll(ctx, all, splitBase)
}

// ExtractLegacyOTA handles older OTAs whose DSC is embedded directly in
// the zip (spec.md §4.4, branch 2).
func (p *Procedure) ExtractLegacyOTA(ctx context.Context, zipPath, scratchDir string) (Result, error) {
	extractDir := filepath.Join(scratchDir, "extract")
	if err := os.MkdirAll(extractDir, 0o755); err != nil {
		return Result{}, errors.Wrap(err, "creating extract scratch dir")
	}
	res, err := p.Runner.Run(ctx, "", "ipsw", "ota", "extract", zipPath, "dyld_shared_cache", "-o", extractDir)
	if err != nil {
		return Result{}, errors.Wrap(err, "invoking ipsw ota extract")
	}
	if res.ExitCode == 1 && !hasAnyDSC(extractDir) {
		return Result{Outcome: PartialUpdate}, nil
	}
	if res.ExitCode != 0 {
		return Result{}, errors.Errorf("ipsw ota extract exited %d: %s", res.ExitCode, res.Stderr)
	}
	found := FindDSCs(extractDir, fileExists)
	if len(found) == 0 {
		return Result{Outcome: NoDSCFound}, nil
	}
	return p.splitAll(ctx, found, filepath.Join(scratchDir, "split"))
}

// ExtractIPSW handles full restore images (spec.md §4.4, branch 3):
// `ipsw extract -d`, repeated once per architecture for macOS.
func (p *Procedure) ExtractIPSW(ctx context.Context, ipswPath, scratchDir string, isMacOS bool) (Result, error) {
	extractDir := filepath.Join(scratchDir, "extract")
	if err := os.MkdirAll(extractDir, 0o755); err != nil {
		return Result{}, errors.Wrap(err, "creating extract scratch dir")
	}
	runCtx, cancel := context.WithTimeout(ctx, IpswExtractTimeout)
	defer cancel()

	archPasses := []string{""}
	if isMacOS {
		archPasses = []string{"arm64e", "x86_64"}
	}
	for _, arch := range archPasses {
		args := []string{"extract", "-d", ipswPath, "-o", extractDir}
		if arch != "" {
			args = append(args, "-a", arch)
		}
		res, err := p.Runner.Run(runCtx, "", "ipsw", args...)
		if errors.Is(err, subproc.ErrTimeout) {
			return Result{}, errors.Wrap(subproc.ErrTimeout, "ipsw extract timed out")
		}
		if err != nil {
			return Result{}, errors.Wrap(err, "invoking ipsw extract")
		}
		if res.ExitCode != 0 {
			return Result{}, errors.Errorf("ipsw extract exited %d: %s", res.ExitCode, res.Stderr)
		}
	}
	found := FindDSCs(extractDir, fileExists)
	if len(found) == 0 {
		return Result{Outcome: NoDSCFound}, nil
	}
	return p.splitAll(ctx, found, filepath.Join(scratchDir, "split"))
}

// splitAll runs `ipsw dyld split` per located DSC, tolerating partial
// failure: only "all splits failed" is terminal (spec.md §4.4).
func (p *Procedure) splitAll(ctx context.Context, files []DSCFile, splitBase string) (Result, error) {
	plan := SplitPlan(splitBase, files)
	var dirs, failedArch []string
	for _, f := range files {
		dir := plan[f]
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Result{}, errors.Wrapf(err, "creating split output dir %s", dir)
		}
		res, err := p.Runner.Run(ctx, "", "ipsw", "dyld", "split", f.Path, "--output", dir)
		if err != nil || res.ExitCode != 0 {
			failedArch = append(failedArch, f.Arch)
			continue
		}
		dirs = append(dirs, dir)
	}
	if len(dirs) == 0 {
		return Result{Outcome: AllSplitsFailed, FailedArch: failedArch}, nil
	}
	return Result{Outcome: Extracted, SplitDirs: dirs, FailedArch: failedArch}, nil
}

func parsePatchedDMGs(stderr string) []string {
	var dmgs []string
	for _, m := range patchedDMGPattern.FindAllStringSubmatch(stderr, -1) {
		dmgs = append(dmgs, m[2])
	}
	return dmgs
}

func hasAnyDSC(root string) bool {
	return len(FindDSCs(root, fileExists)) > 0
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// IsCryptexPlatform reports whether an OTA version uses the cryptex OTA
// packaging rather than the legacy embedded-DSC layout. It looks only at
// the version: any version whose major number is 16 or higher counts as
// cryptex, whatever the platform.
func IsCryptexPlatform(version string) bool {
	major, _, _ := strings.Cut(version, ".")
	n := 0
	for _, c := range major {
		if c < '0' || c > '9' {
			return false
		}
		n = n*10 + int(c-'0')
	}
	return n >= 16
}
