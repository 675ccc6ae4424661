package symxconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsZeroValue(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != (Config{}) {
		t.Errorf("cfg = %+v, want zero value", cfg)
	}
}

func TestLoadParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "symx.yaml")
	contents := "storage: gs://proj@bucket\ntimeout_minutes: 120\nupload_concurrency: 20\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage != "gs://proj@bucket" || cfg.TimeoutMinutes != 120 || cfg.UploadConcurrency != 20 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Timeout().Minutes() != 120 {
		t.Errorf("Timeout() = %v, want 120m", cfg.Timeout())
	}
}

func TestMergeFlagsOverrideFile(t *testing.T) {
	base := Config{Storage: "gs://file-bucket", TimeoutMinutes: 60, UploadConcurrency: 5}
	merged := Merge(base, "gs://flag-bucket", 0, 0)
	if merged.Storage != "gs://flag-bucket" {
		t.Errorf("Storage = %q, want flag override", merged.Storage)
	}
	if merged.TimeoutMinutes != 60 {
		t.Errorf("TimeoutMinutes = %d, want file value preserved", merged.TimeoutMinutes)
	}
}
