package metastore

import (
	"github.com/getsentry/symx/internal/artifact"
)

// mergeIpswInto applies the merge protocol to the IPSW document. The key is
// already identity-derived ({platform}_{version}_{build}), so within a
// single key the only per-merge work is per-source device-set union and
// immutable-field verification; duplicate detection happens when an
// incoming key is new but its payload (first usable source's hash) matches
// an existing, differently-built artifact.
func mergeIpswInto(local artifact.IpswDocument, incoming artifact.IpswDocument) error {
	for key, theirs := range incoming.Artifacts {
		ours, exists := local.Artifacts[key]
		if !exists {
			continue
		}
		if ours.Identity() != theirs.Identity() {
			return ErrIdentityMismatch
		}
		merged, err := mergeSources(ours, theirs)
		if err != nil {
			return err
		}
		local.Artifacts[key] = merged
	}
	for key, theirs := range incoming.Artifacts {
		if _, exists := local.Artifacts[key]; exists {
			continue
		}
		entry := theirs.Clone()
		for i := range entry.Sources {
			if entry.Sources[i].ProcessingState == "" {
				entry.Sources[i].ProcessingState = artifact.Indexed
			}
		}
		if dupOf, ok := findPayloadDuplicate(local, entry); ok {
			_ = dupOf
			for i := range entry.Sources {
				entry.Sources[i].ProcessingState = artifact.IndexedDuplicate
			}
		}
		local.Artifacts[key] = entry
	}
	return nil
}

// mergeSources unions device sets for matching links and appends any
// source the incoming artifact introduces. Hashes/size/link are immutable
// per source; a mismatch on a shared link is a fatal identity error.
func mergeSources(ours, theirs artifact.IpswArtifact) (artifact.IpswArtifact, error) {
	merged := ours.Clone()
	byLink := make(map[string]int, len(merged.Sources))
	for i, s := range merged.Sources {
		byLink[s.Link] = i
	}
	for _, theirSrc := range theirs.Sources {
		if i, ok := byLink[theirSrc.Link]; ok {
			existing := merged.Sources[i]
			if existing.Identity() != theirSrc.Identity() {
				return artifact.IpswArtifact{}, ErrIdentityMismatch
			}
			existing.Devices = existing.Devices.Clone()
			existing.Devices.Union(theirSrc.Devices)
			merged.Sources[i] = existing
			continue
		}
		newSrc := theirSrc.Clone()
		if newSrc.ProcessingState == "" {
			newSrc.ProcessingState = artifact.Indexed
		}
		merged.Sources = append(merged.Sources, newSrc)
	}
	return merged, nil
}

// findPayloadDuplicate looks for an existing artifact on a different build
// whose first hashed source matches entry's.
func findPayloadDuplicate(local artifact.IpswDocument, entry artifact.IpswArtifact) (string, bool) {
	entryHash := firstSHA1(entry)
	if entryHash == "" {
		return "", false
	}
	for key, existing := range local.Artifacts {
		if existing.Platform != entry.Platform || existing.Version != entry.Version || existing.Build == entry.Build {
			continue
		}
		if firstSHA1(existing) == entryHash {
			return key, true
		}
	}
	return "", false
}

func firstSHA1(a artifact.IpswArtifact) string {
	for _, s := range a.Sources {
		if s.Hashes.SHA1 != "" {
			return s.Hashes.SHA1
		}
	}
	return ""
}
