package artifact

// OtaArtifact is the unit of identity for the OTA domain: a single
// downloadable zip, keyed by the SHA-1-shaped stem of its CDN URL.
type OtaArtifact struct {
	Build         string          `json:"build"`
	Version       string          `json:"version"`
	Platform      Platform        `json:"platform"`
	URL           string          `json:"url"`
	Hash          string          `json:"hash"`
	HashAlgorithm string          `json:"hash_algorithm"`
	Devices       StringSet       `json:"devices"`
	Description   StringSet       `json:"description"`
	DownloadPath  string          `json:"download_path,omitempty"`
	ProcessingState ProcessingState `json:"processing_state"`
	LastRun       int             `json:"last_run"`
	LogExcerpt    string          `json:"log_excerpt,omitempty"`
}

// OtaIdentity is the immutable tuple used for identity comparisons.
type OtaIdentity struct {
	Build, Version string
	Platform       Platform
	URL, Hash, HashAlgorithm string
}

func (a OtaArtifact) Identity() OtaIdentity {
	return OtaIdentity{
		Build:         a.Build,
		Version:       a.Version,
		Platform:      a.Platform,
		URL:           a.URL,
		Hash:          a.Hash,
		HashAlgorithm: a.HashAlgorithm,
	}
}

// OtaPayload is the identity subset used for the beta/GA duplicate
// rule: same payload, possibly different build.
type OtaPayload struct {
	Hash, HashAlgorithm string
	Platform            Platform
	Version             string
	URL                 string
}

func (a OtaArtifact) Payload() OtaPayload {
	return OtaPayload{
		Hash:          a.Hash,
		HashAlgorithm: a.HashAlgorithm,
		Platform:      a.Platform,
		Version:       a.Version,
		URL:           a.URL,
	}
}

// Clone returns a deep copy, so callers can mutate without aliasing the
// document's stored sets.
func (a OtaArtifact) Clone() OtaArtifact {
	c := a
	c.Devices = a.Devices.Clone()
	c.Description = a.Description.Clone()
	return c
}
