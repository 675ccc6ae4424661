package appledb

import (
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/getsentry/symx/internal/artifact"
	"github.com/pkg/errors"
)

// osFileLink is one download link for a source.
type osFileLink struct {
	URL    string `json:"url"`
	Active bool   `json:"active"`
}

// osFileSource is one entry in an osFiles/*.json's "sources" array.
type osFileSource struct {
	Type      string       `json:"type"`
	DeviceMap []string     `json:"deviceMap"`
	Links     []osFileLink `json:"links"`
	Hashes    struct {
		SHA1     string `json:"sha1"`
		SHA2_256 string `json:"sha2-256"`
	} `json:"hashes"`
	Size int64 `json:"size"`
}

// osFile is the minimal schema symx reads from an AppleDB osFiles/*.json
// entry.
type osFile struct {
	OSStr    string         `json:"osStr"`
	Version  string         `json:"version"`
	Build    string         `json:"build"`
	Released string         `json:"released"`
	Sources  []osFileSource `json:"sources"`
}

// ErrInvalidSchema indicates an osFiles/*.json entry failed strict schema
// validation (required fields missing or malformed).
var ErrInvalidSchema = errors.New("invalid AppleDB schema")

// parseOSFile strictly validates and decodes one osFiles/*.json payload.
func parseOSFile(data []byte) (osFile, error) {
	var f osFile
	dec := json.NewDecoder(strings.NewReader(string(data)))
	if err := dec.Decode(&f); err != nil {
		return osFile{}, errors.Wrap(ErrInvalidSchema, err.Error())
	}
	if f.OSStr == "" || f.Version == "" || f.Build == "" {
		return osFile{}, errors.Wrapf(ErrInvalidSchema, "missing required field in %+v", f)
	}
	return f, nil
}

// usableSource reports whether a source is something symx's mirror stage
// can act on: an "ipsw"-typed source with at least one active https link.
func usableSource(s osFileSource) (link string, ok bool) {
	if s.Type != "ipsw" {
		return "", false
	}
	for _, l := range s.Links {
		if l.Active && strings.HasPrefix(l.URL, "https://") {
			return l.URL, true
		}
	}
	return "", false
}

// toIpswArtifact converts a validated osFile into the IpswArtifact
// document shape, keeping only usable sources. Returns ok=false if the
// file has zero usable sources (spec.md §4.2: discard zero-source files).
func toIpswArtifact(f osFile) (artifact.IpswArtifact, bool) {
	a := artifact.IpswArtifact{
		Platform: artifact.IpswPlatform(f.OSStr),
		Version:  f.Version,
		Build:    f.Build,
		Released: f.Released,
	}
	for _, s := range f.Sources {
		link, ok := usableSource(s)
		if !ok {
			continue
		}
		a.Sources = append(a.Sources, artifact.IpswSource{
			Devices:  artifact.NewStringSet(s.DeviceMap...),
			Link:     link,
			Hashes:   artifact.Hashes{SHA1: s.Hashes.SHA1, SHA2: s.Hashes.SHA2_256},
			Size:     s.Size,
			FileName: filepath.Base(link),
			ProcessingState: artifact.Indexed,
		})
	}
	if len(a.Sources) == 0 {
		return artifact.IpswArtifact{}, false
	}
	return a, true
}
