package artifact

import "fmt"

// OtaDocument is the wire format of the OTA metadata document: a flat
// object of id -> OtaArtifact, no envelope.
type OtaDocument map[string]OtaArtifact

func (d OtaDocument) Clone() OtaDocument {
	c := make(OtaDocument, len(d))
	for k, v := range d {
		c[k] = v.Clone()
	}
	return c
}

// IpswDocument is the wire format of the IPSW metadata document, wrapped in
// an envelope carrying a schema version for forward compatibility.
type IpswDocument struct {
	Version   int                     `json:"version"`
	Artifacts map[string]IpswArtifact `json:"artifacts"`
}

// CurrentIpswDocumentVersion is written by this implementation; readers
// ignore unknown future versions' unrecognized fields rather than failing.
const CurrentIpswDocumentVersion = 1

func NewIpswDocument() IpswDocument {
	return IpswDocument{Version: CurrentIpswDocumentVersion, Artifacts: map[string]IpswArtifact{}}
}

func (d IpswDocument) Clone() IpswDocument {
	c := IpswDocument{Version: d.Version, Artifacts: make(map[string]IpswArtifact, len(d.Artifacts))}
	for k, v := range d.Artifacts {
		c.Artifacts[k] = v.Clone()
	}
	return c
}

// BetaDuplicateKey is the key a newly-observed OTA beta-of-a-release
// duplicate is inserted under.
func BetaDuplicateKey(originalKey string) string {
	return originalKey + "_beta"
}

// NextDuplicateKey finds the first unused "{originalKey}_duplicate_N" key
// (N starting at 1) in the given document.
func NextDuplicateKey(originalKey string, exists func(key string) bool) string {
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s_duplicate_%d", originalKey, n)
		if !exists(candidate) {
			return candidate
		}
	}
}
