package metastore

import (
	"github.com/getsentry/symx/internal/artifact"
)

// mergeOtaInto applies the merge protocol of spec.md §4.1 to local,
// folding in incoming in place. local is mutated; callers that need the
// pre-merge value should Clone() first.
func mergeOtaInto(local artifact.OtaDocument, incoming artifact.OtaDocument) error {
	// Step 1: keys present in both.
	for key, theirs := range incoming {
		ours, exists := local[key]
		if !exists {
			continue
		}
		ours.Devices = ours.Devices.Clone()
		ours.Description = ours.Description.Clone()
		ours.Devices.Union(theirs.Devices)
		ours.Description.Union(theirs.Description)
		local[key] = ours

		if ours.Identity() == theirs.Identity() {
			continue // exact identity match, sets already unioned above.
		}
		if onlyBuildDiffers(ours.Identity(), theirs.Identity()) {
			dupKey := artifact.BetaDuplicateKey(key)
			for existsAt(local, dupKey) {
				dupKey = artifact.NextDuplicateKey(key, func(k string) bool { return existsAt(local, k) })
			}
			dup := theirs.Clone()
			dup.ProcessingState = artifact.IndexedDuplicate
			local[dupKey] = dup
			continue
		}
		return ErrIdentityMismatch
	}
	// Step 2: keys only incoming has.
	for key, theirs := range incoming {
		if _, exists := local[key]; exists {
			continue
		}
		entry := theirs.Clone()
		if entry.ProcessingState == "" {
			entry.ProcessingState = artifact.Indexed
		}
		for existingKey, existing := range local {
			if existingKey == key {
				continue
			}
			if payloadMatchesDifferentBuild(existing, entry) {
				entry.ProcessingState = artifact.IndexedDuplicate
				break
			}
		}
		local[key] = entry
	}
	return nil
}

func onlyBuildDiffers(a, b artifact.OtaIdentity) bool {
	if a.Build == b.Build {
		return false
	}
	a.Build, b.Build = "", ""
	return a == b
}

// payloadMatchesDifferentBuild implements the payload-equality check of
// spec.md §4.1 step 2: same hash/hash_algorithm/platform/version, different
// build.
func payloadMatchesDifferentBuild(existing, candidate artifact.OtaArtifact) bool {
	if existing.Build == candidate.Build {
		return false
	}
	return existing.Hash == candidate.Hash &&
		existing.HashAlgorithm == candidate.HashAlgorithm &&
		existing.Platform == candidate.Platform &&
		existing.Version == candidate.Version
}

func existsAt(doc artifact.OtaDocument, key string) bool {
	_, ok := doc[key]
	return ok
}
