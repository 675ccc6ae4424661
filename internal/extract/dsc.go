// Package extract implements the DSC extraction procedure (spec.md §4.4):
// locating dyld_shared_cache files under a mounted or extracted root,
// splitting each into per-architecture output, and the per-platform
// dispatch (cryptex OTA, legacy OTA, macOS IPSW, mobile IPSW) that
// produces them.
package extract

import (
	"fmt"
	"path"
)

// searchPaths are the roots, relative to a mounted/extracted volume, where
// a DSC may live (spec.md §4.4, bit-exact).
var searchPaths = []string{
	"System/Library/dyld/",
	"System/Library/Caches/com.apple.dyld/",
	"AssetData/payloadv2/patches/System/Library/Caches/com.apple.dyld/",
	"AssetData/payloadv2/ecc_data/System/Library/Caches/com.apple.dyld/",
}

// architectures is the closed set of DSC architecture suffixes symx looks
// for (spec.md §4.4, bit-exact order doesn't matter for correctness but is
// kept stable for deterministic test fixtures).
var architectures = []string{"arm64e", "arm64", "arm64_32", "armv7", "armv7k", "armv7s", "x86_64"}

// DSCFile is one located dyld_shared_cache file.
type DSCFile struct {
	// Path is the full path to the DSC file under the search root.
	Path string
	Arch string
}

// Exists abstracts filesystem existence checks so search can run against a
// real mounted volume or a fake in tests.
type Exists func(path string) bool

// FindDSCs searches root's known locations × architectures for DSC files
// (spec.md §4.4). Zero results signal DSC_EXTRACTION_FAILED to the caller.
func FindDSCs(root string, exists Exists) []DSCFile {
	var found []DSCFile
	for _, sp := range searchPaths {
		for _, arch := range architectures {
			candidate := path.Join(root, sp, "dyld_shared_cache_"+arch)
			if exists(candidate) {
				found = append(found, DSCFile{Path: candidate, Arch: arch})
			}
		}
	}
	return found
}

// SplitPlan assigns each located DSC file a disjoint split output
// directory, suffixing collisions (two results for the same architecture
// from different search paths) with "_1", "_2", … (spec.md §4.4).
func SplitPlan(base string, files []DSCFile) map[DSCFile]string {
	plan := make(map[DSCFile]string, len(files))
	used := make(map[string]int)
	for _, f := range files {
		dir := path.Join(base, f.Arch)
		if n, taken := used[dir]; taken {
			used[dir] = n + 1
			dir = fmt.Sprintf("%s_%d", dir, n)
		} else {
			used[dir] = 1
		}
		plan[f] = dir
	}
	return plan
}
