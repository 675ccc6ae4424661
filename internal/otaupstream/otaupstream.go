// Package otaupstream implements the OTA side of the index stage
// (spec.md §4.2): invoking the external `ipsw` tool's OTA metadata listing
// for each platform and channel, and folding the results into an
// OtaDocument ready for MergeFromUpstream.
package otaupstream

import (
	"context"
	"encoding/json"
	"log"
	"strings"

	"github.com/getsentry/symx/internal/artifact"
	"github.com/getsentry/symx/internal/subproc"
	"github.com/pkg/errors"
)

// record is the JSON shape of one entry in `ipsw download ota --json`'s
// output array (spec.md §6).
type record struct {
	URL           string   `json:"url"`
	Build         string   `json:"build"`
	Version       string   `json:"version"`
	Hash          string   `json:"hash"`
	HashAlgorithm string   `json:"hash_algorithm"`
	Devices       []string `json:"devices"`
	Description   string   `json:"description"`
}

// runner abstracts subproc.Runner so tests can inject fake tool captures
// (DESIGN NOTES: "Subprocess shell-outs").
type runner interface {
	Run(ctx context.Context, dir, name string, args ...string) (subproc.Result, error)
}

// Fetcher runs `ipsw download ota` for each platform and channel.
type Fetcher struct {
	Runner runner
	Logger *log.Logger
}

// IndexKeyLength is the expected length of a zip URL's SHA-1-shaped stem.
const IndexKeyLength = 40

// Retrieve collects the current release and beta OTA metadata for the
// closed platform set. A platform/channel whose ipsw run fails with
// "403 Forbidden" on stderr is skipped with a warning; any other failure
// aborts Retrieve with an error (spec.md §4.2, §7, SPEC_FULL.md's
// 403-specific downgrade).
func (f *Fetcher) Retrieve(ctx context.Context) (artifact.OtaDocument, error) {
	doc := artifact.OtaDocument{}
	for _, platform := range artifact.OTAPlatforms {
		for _, beta := range []bool{false, true} {
			if err := f.retrievePlatform(ctx, platform, beta, doc); err != nil {
				return nil, err
			}
		}
	}
	return doc, nil
}

func (f *Fetcher) retrievePlatform(ctx context.Context, platform artifact.Platform, beta bool, doc artifact.OtaDocument) error {
	args := []string{"download", "ota", "--platform", string(platform), "--urls", "--json"}
	if beta {
		args = append(args, "--beta")
	}
	res, err := f.Runner.Run(ctx, "", "ipsw", args...)
	if err != nil {
		return errors.Wrapf(err, "invoking ipsw download ota for %s", platform)
	}
	if res.ExitCode != 0 {
		if strings.Contains(string(res.Stderr), "403 Forbidden") {
			f.logf("skipping %s (beta=%v): upstream returned 403 Forbidden", platform, beta)
			return nil
		}
		return errors.Errorf("ipsw download ota for %s (beta=%v) exited %d: %s", platform, beta, res.ExitCode, res.Stderr)
	}
	var records []record
	if len(strings.TrimSpace(string(res.Stdout))) > 0 {
		if err := json.Unmarshal(res.Stdout, &records); err != nil {
			return errors.Wrapf(err, "parsing ipsw download ota output for %s", platform)
		}
	}
	for _, r := range records {
		id, err := deriveID(r.URL)
		if err != nil {
			return errors.Wrapf(err, "platform %s", platform)
		}
		// Betas can carry the same zip id as a later release of the same
		// payload; tag the key at fetch time so a same-sync collision
		// between channels doesn't clobber one record with the other,
		// leaving artifact.BetaDuplicateKey's merge-time check in
		// metastore to reconcile the two (original_source/symx/_ota's
		// parse_download_meta_output does the same tagging).
		if beta {
			id = artifact.BetaDuplicateKey(id)
		}
		var desc artifact.StringSet
		if r.Description != "" {
			desc = artifact.NewStringSet(r.Description)
		}
		doc[id] = artifact.OtaArtifact{
			Build:           r.Build,
			Version:         r.Version,
			Platform:        platform,
			URL:             r.URL,
			Hash:            r.Hash,
			HashAlgorithm:   r.HashAlgorithm,
			Devices:         artifact.NewStringSet(r.Devices...),
			Description:     desc,
			ProcessingState: artifact.Indexed,
		}
	}
	return nil
}

// deriveID extracts the artifact id from a zip URL: the filename stem
// without its ".zip" extension, which Apple's CDN URLs give as a 40-char
// SHA-1-shaped string.
func deriveID(url string) (string, error) {
	slash := strings.LastIndexByte(url, '/')
	if slash < 0 || !strings.HasSuffix(url, ".zip") {
		return "", errors.Errorf("unexpected url format %q", url)
	}
	id := url[slash+1 : len(url)-len(".zip")]
	if len(id) != IndexKeyLength {
		return "", errors.Errorf("unexpected url format %q", url)
	}
	return id, nil
}

func (f *Fetcher) logf(format string, args ...any) {
	if f.Logger != nil {
		f.Logger.Printf(format, args...)
	}
}
