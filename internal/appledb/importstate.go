package appledb

import (
	"context"
	"encoding/json"

	"github.com/getsentry/symx/internal/artifact"
	"github.com/getsentry/symx/internal/objstore"
	"github.com/pkg/errors"
)

// ImportState tracks, per platform folder, which osFiles/*.json files have
// already been processed (by content hash), so re-running against an
// unchanged AppleDB snapshot is a near no-op (spec.md §4.2). Keyed by
// repository-relative path (osFiles/platform/version-folder/file.json) to
// the content hash
// observed at the time it was last folded into the metadata document —
// SPEC_FULL.md's supplemented feature: dedup is per-file, not per-commit,
// so a previous run killed mid-walk doesn't redo work it already wrote.
type ImportState map[string]string

// Store persists the import-state document under CAS, same shape as the
// metadata stores but content-addressed by file hash rather than artifact
// identity.
type Store struct {
	store objstore.Store
}

func NewStore(store objstore.Store) *Store {
	return &Store{store: store}
}

func (s *Store) Load(ctx context.Context) (ImportState, int64, error) {
	data, gen, err := objstore.Get(ctx, s.store, artifact.AppleDBImportStateKey)
	if errors.Is(err, objstore.ErrNotExist) {
		return ImportState{}, 0, nil
	}
	if err != nil {
		return nil, 0, errors.Wrap(err, "loading AppleDB import state")
	}
	var state ImportState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, 0, errors.Wrap(err, "decoding AppleDB import state")
	}
	return state, gen, nil
}

func (s *Store) Save(ctx context.Context, state ImportState, expectedGeneration int64) error {
	data, err := json.Marshal(state)
	if err != nil {
		return errors.Wrap(err, "encoding AppleDB import state")
	}
	return s.store.WriteIfGenerationMatch(ctx, artifact.AppleDBImportStateKey, data, expectedGeneration)
}
