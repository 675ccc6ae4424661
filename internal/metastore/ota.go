package metastore

import (
	"context"
	"encoding/json"

	"github.com/getsentry/symx/internal/artifact"
	"github.com/getsentry/symx/internal/objstore"
	"github.com/pkg/errors"
)

// OtaStore implements the four metadata store operations of spec.md §4.1
// for the OTA domain document.
type OtaStore struct {
	store objstore.Store
	key   string
}

func NewOtaStore(store objstore.Store) *OtaStore {
	return &OtaStore{store: store, key: artifact.OTA.MetadataKey()}
}

// Load reads the document. Generation 0 signals "not present".
func (s *OtaStore) Load(ctx context.Context) (artifact.OtaDocument, int64, error) {
	data, gen, err := objstore.Get(ctx, s.store, s.key)
	if errors.Is(err, objstore.ErrNotExist) {
		return artifact.OtaDocument{}, 0, nil
	}
	if err != nil {
		return nil, 0, errors.Wrap(err, "loading OTA metadata document")
	}
	var doc artifact.OtaDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, 0, errors.Wrap(err, "decoding OTA metadata document")
	}
	return doc, gen, nil
}

// Save writes the document, succeeding only if expectedGeneration matches
// the store's current generation for the key.
func (s *OtaStore) Save(ctx context.Context, doc artifact.OtaDocument, expectedGeneration int64) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "encoding OTA metadata document")
	}
	if err := s.store.WriteIfGenerationMatch(ctx, s.key, data, expectedGeneration); err != nil {
		return err // objstore.ErrPreconditionFailed surfaces as-is for the caller's retry loop.
	}
	return nil
}

// MergeFromUpstream applies the merge protocol (mergeOtaInto) against the
// current document and saves under CAS, retrying up to MaxCASRetries times
// on precondition failure.
func (s *OtaStore) MergeFromUpstream(ctx context.Context, incoming artifact.OtaDocument) (artifact.OtaDocument, error) {
	var result artifact.OtaDocument
	err := retryCAS(ctx, func(ctx context.Context) error {
		local, gen, err := s.Load(ctx)
		if err != nil {
			return err
		}
		merged := local.Clone()
		if err := mergeOtaInto(merged, incoming); err != nil {
			return err
		}
		if err := s.Save(ctx, merged, gen); err != nil {
			return err
		}
		result = merged
		return nil
	})
	return result, err
}

// UpdateItem reads the document, applies fn to mutate (or insert) the entry
// at key, and writes back under CAS, retrying up to MaxCASRetries times.
func (s *OtaStore) UpdateItem(ctx context.Context, key string, fn func(current artifact.OtaArtifact, exists bool) (artifact.OtaArtifact, error)) error {
	return retryCAS(ctx, func(ctx context.Context) error {
		doc, gen, err := s.Load(ctx)
		if err != nil {
			return err
		}
		doc = doc.Clone()
		current, exists := doc[key]
		updated, err := fn(current, exists)
		if err != nil {
			return err
		}
		if exists && !artifact.Advances(current.ProcessingState, updated.ProcessingState) {
			return errors.Errorf("refusing to regress state for %s: %s -> %s", key, current.ProcessingState, updated.ProcessingState)
		}
		doc[key] = updated
		return s.Save(ctx, doc, gen)
	})
}
