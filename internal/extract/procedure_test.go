package extract

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/getsentry/symx/internal/subproc"
)

type fakeRunner struct {
	byName map[string]subproc.Result
	calls  []string
}

func (f *fakeRunner) Run(ctx context.Context, dir, name string, args ...string) (subproc.Result, error) {
	f.calls = append(f.calls, name+" "+strings.Join(args, " "))
	key := name
	for _, a := range args {
		key += " " + a
	}
	for k, res := range f.byName {
		if strings.Contains(key, k) {
			return res, nil
		}
	}
	return subproc.Result{ExitCode: 0}, nil
}

type fakeMounter struct {
	mountPoint string
}

func (f *fakeMounter) Mount(ctx context.Context, imagePath string) (string, error) {
	return f.mountPoint, nil
}
func (f *fakeMounter) Unmount(ctx context.Context, mountPoint string) error { return nil }

func TestExtractLegacyOTAPartialUpdate(t *testing.T) {
	scratch := t.TempDir()
	r := &fakeRunner{byName: map[string]subproc.Result{
		"ota extract": {ExitCode: 1, Stderr: []byte("no dyld_shared_cache in zip")},
	}}
	p := &Procedure{Runner: r}
	res, err := p.ExtractLegacyOTA(context.Background(), "x.zip", scratch)
	if err != nil {
		t.Fatalf("ExtractLegacyOTA: %v", err)
	}
	if res.Outcome != PartialUpdate {
		t.Errorf("Outcome = %v, want PartialUpdate", res.Outcome)
	}
}

func TestExtractLegacyOTAFindsAndSplits(t *testing.T) {
	scratch := t.TempDir()
	extractDir := filepath.Join(scratch, "extract", "System", "Library", "dyld")
	if err := os.MkdirAll(extractDir, 0o755); err != nil {
		t.Fatal(err)
	}
	dscPath := filepath.Join(extractDir, "dyld_shared_cache_arm64e")
	if err := os.WriteFile(dscPath, []byte("fake"), 0o644); err != nil {
		t.Fatal(err)
	}
	r := &fakeRunner{byName: map[string]subproc.Result{}}
	p := &Procedure{Runner: r}
	res, err := p.ExtractLegacyOTA(context.Background(), "x.zip", scratch)
	if err != nil {
		t.Fatalf("ExtractLegacyOTA: %v", err)
	}
	if res.Outcome != Extracted || len(res.SplitDirs) != 1 {
		t.Errorf("res = %+v, want one split dir", res)
	}
}

func TestExtractLegacyOTANoDSC(t *testing.T) {
	scratch := t.TempDir()
	r := &fakeRunner{}
	p := &Procedure{Runner: r}
	res, err := p.ExtractLegacyOTA(context.Background(), "x.zip", scratch)
	if err != nil {
		t.Fatalf("ExtractLegacyOTA: %v", err)
	}
	if res.Outcome != NoDSCFound {
		t.Errorf("Outcome = %v, want NoDSCFound", res.Outcome)
	}
}

func TestSplitAllToleratesPartialFailure(t *testing.T) {
	r := &fakeRunner{byName: map[string]subproc.Result{
		"dyld split /a": {ExitCode: 1, Stderr: []byte("boom")},
	}}
	p := &Procedure{Runner: r}
	files := []DSCFile{{Path: "/a/dyld_shared_cache_arm64e", Arch: "arm64e"}, {Path: "/b/dyld_shared_cache_x86_64", Arch: "x86_64"}}
	res, err := p.splitAll(context.Background(), files, t.TempDir())
	if err != nil {
		t.Fatalf("splitAll: %v", err)
	}
	if res.Outcome != Extracted || len(res.SplitDirs) != 1 || len(res.FailedArch) != 1 {
		t.Errorf("res = %+v, want one success one failure", res)
	}
}

func TestSplitAllFailsWhenAllSplitsFail(t *testing.T) {
	r := &fakeRunner{byName: map[string]subproc.Result{
		"dyld split": {ExitCode: 1, Stderr: []byte("boom")},
	}}
	p := &Procedure{Runner: r}
	files := []DSCFile{{Path: "/a/dyld_shared_cache_arm64e", Arch: "arm64e"}}
	res, err := p.splitAll(context.Background(), files, t.TempDir())
	if err != nil {
		t.Fatalf("splitAll: %v", err)
	}
	if res.Outcome != AllSplitsFailed {
		t.Errorf("Outcome = %v, want AllSplitsFailed", res.Outcome)
	}
}

func TestExtractCryptexOTAMountsAndSplits(t *testing.T) {
	scratch := t.TempDir()
	volRoot := t.TempDir()
	dscDir := filepath.Join(volRoot, "System", "Library", "Caches", "com.apple.dyld")
	if err := os.MkdirAll(dscDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dscDir, "dyld_shared_cache_arm64e"), []byte("fake"), 0o644); err != nil {
		t.Fatal(err)
	}
	r := &fakeRunner{byName: map[string]subproc.Result{
		"ota patch": {ExitCode: 0, Stderr: []byte("Patching cryptex-system-arm64e to " + filepath.Join(scratch, "patch", "cryptex.dmg"))},
	}}
	m := &fakeMounter{mountPoint: volRoot}
	p := &Procedure{Runner: r, Mounter: m}
	res, err := p.ExtractCryptexOTA(context.Background(), "x.zip", scratch)
	if err != nil {
		t.Fatalf("ExtractCryptexOTA: %v", err)
	}
	if res.Outcome != Extracted || len(res.SplitDirs) != 1 {
		t.Errorf("res = %+v, want one split dir", res)
	}
}

func TestBundleIDs(t *testing.T) {
	if got := OtaBundleID("A"); got != "ota_A" {
		t.Errorf("OtaBundleID = %q", got)
	}
	if got := IpswBundleID("iPhone,14,2_17.0_21A326.ipsw"); got != "ipsw_iPhone_14_2_17.0_21A326" {
		t.Errorf("IpswBundleID = %q", got)
	}
}

func TestIsCryptexPlatform(t *testing.T) {
	if !IsCryptexPlatform("17.0") {
		t.Error("17.0 should be cryptex")
	}
	if IsCryptexPlatform("15.7") {
		t.Error("15.7 should not be cryptex")
	}
}
