package simextract

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/getsentry/symx/internal/extract"
	"github.com/getsentry/symx/internal/objstore"
	"github.com/getsentry/symx/internal/subproc"
	"github.com/getsentry/symx/internal/symbolupload"
)

type fakeRunner struct {
	calls []string
}

func (f *fakeRunner) Run(_ context.Context, _, name string, args ...string) (subproc.Result, error) {
	f.calls = append(f.calls, name)
	return subproc.Result{ExitCode: 0}, nil
}

func mustMkdirAll(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatal(err)
	}
}

func mustWriteFile(t *testing.T, path, contents string) {
	t.Helper()
	mustMkdirAll(t, filepath.Dir(path))
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestFindRuntimesParsesDirNamesAndArch(t *testing.T) {
	root := t.TempDir()
	runtimeDir := filepath.Join(root, "22A3351", "com.apple.CoreSimulator.SimRuntime.iOS-17-0.21A328")
	mustWriteFile(t, filepath.Join(runtimeDir, "dyld_sim_shared_cache_arm64"), "dsc-bytes")
	mustWriteFile(t, filepath.Join(runtimeDir, "dyld_sim_shared_cache_arm64.map"), "ignored")

	runtimes, err := FindRuntimes(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(runtimes) != 1 {
		t.Fatalf("runtimes = %v, want 1", runtimes)
	}
	rt := runtimes[0]
	if rt.OSName != "ios" || rt.OSVersion != "17.0" || rt.BuildNumber != "21A328" || rt.Arch != "arm64" {
		t.Errorf("runtime = %+v", rt)
	}
	if rt.MacOSVersion != "22A3351" {
		t.Errorf("MacOSVersion = %q, want 22A3351", rt.MacOSVersion)
	}
	if got, want := rt.BundleID(), "sim_22A3351_17.0_21A328_arm64"; got != want {
		t.Errorf("BundleID() = %q, want %q", got, want)
	}
}

func TestFindRuntimesSkipsDSStoreAndUnrelatedDirs(t *testing.T) {
	root := t.TempDir()
	mustMkdirAll(t, filepath.Join(root, ".DS_Store"))
	mustMkdirAll(t, filepath.Join(root, "22A3351", "not-a-runtime-dir"))

	runtimes, err := FindRuntimes(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(runtimes) != 0 {
		t.Errorf("runtimes = %v, want none", runtimes)
	}
}

func TestExtractRuntimeSplitsSymsortsAndUploads(t *testing.T) {
	root := t.TempDir()
	rtPath := filepath.Join(root, "runtime")
	mustWriteFile(t, filepath.Join(rtPath, "dyld_sim_shared_cache_arm64"), "dsc-bytes")
	mustWriteFile(t, filepath.Join(rtPath, "dyld_sim_shared_cache_arm64.atlas"), "ignored")

	rt := Runtime{
		Arch: "arm64", BuildNumber: "21A328", MacOSVersion: "22A3351",
		OSName: "ios", OSVersion: "17.0", Path: rtPath,
	}

	r := &fakeRunner{}
	store := objstore.NewMemStore()
	e := &Extractor{
		Runner:     r,
		Symsorter:  &extract.Symsorter{Runner: r},
		Uploader:   &symbolupload.Uploader{Store: store},
		ScratchDir: t.TempDir(),
	}
	if err := e.ExtractRuntime(context.Background(), rt); err != nil {
		t.Fatalf("ExtractRuntime: %v", err)
	}

	var sawSplit, sawSymsorter bool
	for _, c := range r.calls {
		if c == "ipsw" {
			sawSplit = true
		}
		if c == "symsorter" {
			sawSymsorter = true
		}
	}
	if !sawSplit || !sawSymsorter {
		t.Errorf("calls = %v, want both ipsw and symsorter invoked", r.calls)
	}
}

func TestExtractRuntimeSkipsUploadWhenNoDSCFiles(t *testing.T) {
	root := t.TempDir()
	rtPath := filepath.Join(root, "runtime")
	mustMkdirAll(t, rtPath)

	rt := Runtime{OSName: "ios", Path: rtPath, BuildNumber: "x", MacOSVersion: "y", OSVersion: "z", Arch: "arm64"}
	r := &fakeRunner{}
	store := objstore.NewMemStore()
	e := &Extractor{
		Runner:     r,
		Symsorter:  &extract.Symsorter{Runner: r},
		Uploader:   &symbolupload.Uploader{Store: store},
		ScratchDir: t.TempDir(),
	}
	if err := e.ExtractRuntime(context.Background(), rt); err != nil {
		t.Fatalf("ExtractRuntime: %v", err)
	}
	if len(r.calls) != 0 {
		t.Errorf("calls = %v, want none (no DSC files to split)", r.calls)
	}
}
