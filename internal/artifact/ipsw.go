package artifact

import "fmt"

// Hashes holds the optional per-source content hashes AppleDB records.
type Hashes struct {
	SHA1 string `json:"sha1,omitempty"`
	SHA2 string `json:"sha2,omitempty"`
}

// IpswSource is one downloadable file backing an IpswArtifact. A single
// platform/version/build triple may have several (different device
// groups shipping different files for the same release).
type IpswSource struct {
	Devices         StringSet       `json:"devices"`
	Link            string          `json:"link"`
	Hashes          Hashes          `json:"hashes,omitempty"`
	Size            int64           `json:"size,omitempty"`
	FileName        string          `json:"file_name"`
	ProcessingState ProcessingState `json:"processing_state"`
	MirrorPath      string          `json:"mirror_path,omitempty"`
	LastRun         int             `json:"last_run"`
	LogExcerpt      string          `json:"log_excerpt,omitempty"`
}

// SourceIdentity is the immutable per-source identity tuple.
type SourceIdentity struct {
	Link   string
	Hashes Hashes
	Size   int64
}

func (s IpswSource) Identity() SourceIdentity {
	return SourceIdentity{Link: s.Link, Hashes: s.Hashes, Size: s.Size}
}

func (s IpswSource) Clone() IpswSource {
	c := s
	c.Devices = s.Devices.Clone()
	return c
}

// IpswArtifact is the unit of identity for the IPSW domain: a
// platform/version/build triple, which may bundle multiple IpswSources.
type IpswArtifact struct {
	Platform IpswPlatform   `json:"platform"`
	Version  string         `json:"version"`
	Build    string         `json:"build"`
	Released string         `json:"released,omitempty"`
	Status   ReleaseStatus  `json:"release_status,omitempty"`
	Sources  []IpswSource   `json:"sources"`
}

// Key returns the stable map key: {platform}_{version}_{build}.
func (a IpswArtifact) Key() string {
	return fmt.Sprintf("%s_%s_%s", a.Platform, a.Version, a.Build)
}

// ArtifactIdentity is the immutable identity tuple shared by all sources of
// one IpswArtifact (the triple itself; per-source fields are compared
// separately since sources may be added across merges).
type ArtifactIdentity struct {
	Platform IpswPlatform
	Version  string
	Build    string
}

func (a IpswArtifact) Identity() ArtifactIdentity {
	return ArtifactIdentity{Platform: a.Platform, Version: a.Version, Build: a.Build}
}

func (a IpswArtifact) Clone() IpswArtifact {
	c := a
	c.Sources = make([]IpswSource, len(a.Sources))
	for i, s := range a.Sources {
		c.Sources[i] = s.Clone()
	}
	return c
}

// HasSourceState reports whether any source is in the given state.
func (a IpswArtifact) HasSourceState(s ProcessingState) bool {
	for _, src := range a.Sources {
		if src.ProcessingState == s {
			return true
		}
	}
	return false
}
