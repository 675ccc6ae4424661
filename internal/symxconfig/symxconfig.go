// Package symxconfig loads the optional YAML configuration file that
// supplies defaults for the CLI's flags (SPEC_FULL.md AMBIENT STACK):
// --storage, --timeout, and the symbol-upload pool size. CLI flags always
// override values from the file.
package symxconfig

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the on-disk shape of an optional symx config file.
type Config struct {
	Storage           string `yaml:"storage"`
	TimeoutMinutes    int    `yaml:"timeout_minutes"`
	UploadConcurrency int    `yaml:"upload_concurrency"`
	AppleDBRepo       string `yaml:"appledb_repo"`
}

// Timeout returns the configured per-run wall-clock budget, or zero if unset.
func (c Config) Timeout() time.Duration {
	if c.TimeoutMinutes <= 0 {
		return 0
	}
	return time.Duration(c.TimeoutMinutes) * time.Minute
}

// Load reads and parses a config file. A missing file is not an error —
// it returns a zero Config, so an unconfigured fleet falls back entirely
// to CLI flags and package defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Config{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, nil
		}
		return Config{}, errors.Wrapf(err, "reading config %s", path)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "parsing config %s", path)
	}
	return cfg, nil
}

// Merge overlays CLI-flag-sourced overrides onto a loaded config: any
// non-zero override field wins. Flags always take precedence over the
// file, per SPEC_FULL.md's ambient config layer.
func Merge(base Config, storage string, timeoutMinutes, uploadConcurrency int) Config {
	merged := base
	if storage != "" {
		merged.Storage = storage
	}
	if timeoutMinutes > 0 {
		merged.TimeoutMinutes = timeoutMinutes
	}
	if uploadConcurrency > 0 {
		merged.UploadConcurrency = uploadConcurrency
	}
	return merged
}
