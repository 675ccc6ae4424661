// Package appledb implements the IPSW side of the index stage (spec.md
// §4.2): syncing a shallow, in-memory clone of the AppleDB git repository,
// walking its osFiles/<platform>/<version-folder>/*.json tree, and folding
// newly observed artifacts into the IPSW metadata store one key at a time.
package appledb

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log"
	"path"
	"strings"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/getsentry/symx/internal/artifact"
	"github.com/getsentry/symx/internal/metastore"
	"github.com/pkg/errors"
)

// DefaultRepoURL is AppleDB's upstream git repository.
const DefaultRepoURL = "https://github.com/littlebyteorg/appledb.git"

// osFilesRoot is the subtree of the AppleDB repository this package walks.
const osFilesRoot = "osFiles"

// Syncer clones AppleDB into an in-memory filesystem on each run and folds
// newly observed entries into the IPSW metadata store. A fresh shallow clone (rather
// than the teacher's cache-service-backed incremental fetch) is acceptable
// here because AppleDB's working tree is small and the import-state
// document, not the git history, is what makes repeated runs cheap.
type Syncer struct {
	RepoURL string
	Meta    *metastore.IpswStore
	Imports *Store
	Logger  *log.Logger
}

// Sync clones AppleDB, walks osFiles/, and writes one update_item per
// artifact key not already reflected at its current content hash in the
// import-state document. Per-item writes (rather than a full-document
// overwrite) are required because mirror/extract run concurrently against
// the same metadata document (spec.md §4.2).
func (s *Syncer) Sync(ctx context.Context) error {
	repoURL := s.RepoURL
	if repoURL == "" {
		repoURL = DefaultRepoURL
	}
	fs := memfs.New()
	_, err := git.CloneContext(ctx, memory.NewStorage(), fs, &git.CloneOptions{
		URL:           repoURL,
		ReferenceName: plumbing.HEAD,
		Depth:         1,
		SingleBranch:  true,
	})
	if err != nil {
		return errors.Wrap(err, "cloning AppleDB")
	}

	state, stateGen, err := s.Imports.Load(ctx)
	if err != nil {
		return errors.Wrap(err, "loading AppleDB import state")
	}
	nextState := make(ImportState, len(state))
	for k, v := range state {
		nextState[k] = v
	}

	platformDirs, err := fs.ReadDir(osFilesRoot)
	if err != nil {
		return errors.Wrap(err, "reading osFiles/")
	}
	for _, platformDir := range platformDirs {
		if !platformDir.IsDir() {
			continue
		}
		if err := s.syncPlatform(ctx, fs, platformDir.Name(), nextState); err != nil {
			return err
		}
	}

	return s.Imports.Save(ctx, nextState, stateGen)
}

func (s *Syncer) syncPlatform(ctx context.Context, fs billy.Filesystem, platform string, state ImportState) error {
	dir := path.Join(osFilesRoot, platform)
	versionDirs, err := fs.ReadDir(dir)
	if err != nil {
		return errors.Wrapf(err, "reading %s", dir)
	}
	for _, versionDir := range versionDirs {
		if !versionDir.IsDir() {
			continue
		}
		vdir := path.Join(dir, versionDir.Name())
		entries, err := fs.ReadDir(vdir)
		if err != nil {
			return errors.Wrapf(err, "reading %s", vdir)
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
				continue
			}
			fpath := path.Join(vdir, entry.Name())
			if err := s.syncFile(ctx, fs, fpath, state); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Syncer) syncFile(ctx context.Context, fs billy.Filesystem, fpath string, state ImportState) error {
	f, err := fs.Open(fpath)
	if err != nil {
		return errors.Wrapf(err, "opening %s", fpath)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return errors.Wrapf(err, "reading %s", fpath)
	}
	hash := contentHash(data)
	if state[fpath] == hash {
		return nil // unchanged since last import, skip.
	}

	osf, err := parseOSFile(data)
	if err != nil {
		s.logf("skipping %s: %v", fpath, err)
		state[fpath] = hash
		return nil
	}
	art, ok := toIpswArtifact(osf)
	if !ok {
		s.logf("skipping %s: no usable sources", fpath)
		state[fpath] = hash
		return nil
	}

	key := art.Key()
	if err := s.Meta.UpdateItem(ctx, key, func(current artifact.IpswArtifact, exists bool) (artifact.IpswArtifact, error) {
		if !exists {
			return art, nil
		}
		return mergeArtifact(current, art), nil
	}); err != nil {
		return errors.Wrapf(err, "updating item %s from %s", key, fpath)
	}
	state[fpath] = hash
	return nil
}

// mergeArtifact folds a freshly parsed artifact into the current stored
// entry, unioning devices per source and appending sources AppleDB added
// since the last sync. It does not compare the other identity fields of a
// source whose link already exists: only its devices are folded in.
func mergeArtifact(current, incoming artifact.IpswArtifact) artifact.IpswArtifact {
	merged := current.Clone()
	for _, src := range incoming.Sources {
		found := false
		for i, existing := range merged.Sources {
			if existing.Link != src.Link {
				continue
			}
			found = true
			merged.Sources[i].Devices = merged.Sources[i].Devices.Clone()
			merged.Sources[i].Devices.Union(src.Devices)
			break
		}
		if !found {
			merged.Sources = append(merged.Sources, src)
		}
	}
	if incoming.Released != "" {
		merged.Released = incoming.Released
	}
	return merged
}

func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (s *Syncer) logf(format string, args ...any) {
	if s.Logger != nil {
		s.Logger.Printf(format, args...)
	}
}
