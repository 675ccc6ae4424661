package metastore

import (
	"context"
	"encoding/json"

	"github.com/getsentry/symx/internal/artifact"
	"github.com/getsentry/symx/internal/objstore"
	"github.com/pkg/errors"
)

// IpswStore implements the four metadata store operations of spec.md §4.1
// for the IPSW domain document.
type IpswStore struct {
	store objstore.Store
	key   string
}

func NewIpswStore(store objstore.Store) *IpswStore {
	return &IpswStore{store: store, key: artifact.IPSW.MetadataKey()}
}

func (s *IpswStore) Load(ctx context.Context) (artifact.IpswDocument, int64, error) {
	data, gen, err := objstore.Get(ctx, s.store, s.key)
	if errors.Is(err, objstore.ErrNotExist) {
		return artifact.NewIpswDocument(), 0, nil
	}
	if err != nil {
		return artifact.IpswDocument{}, 0, errors.Wrap(err, "loading IPSW metadata document")
	}
	var doc artifact.IpswDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return artifact.IpswDocument{}, 0, errors.Wrap(err, "decoding IPSW metadata document")
	}
	if doc.Artifacts == nil {
		doc.Artifacts = map[string]artifact.IpswArtifact{}
	}
	return doc, gen, nil
}

func (s *IpswStore) Save(ctx context.Context, doc artifact.IpswDocument, expectedGeneration int64) error {
	if doc.Version == 0 {
		doc.Version = artifact.CurrentIpswDocumentVersion
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "encoding IPSW metadata document")
	}
	return s.store.WriteIfGenerationMatch(ctx, s.key, data, expectedGeneration)
}

func (s *IpswStore) MergeFromUpstream(ctx context.Context, incoming artifact.IpswDocument) (artifact.IpswDocument, error) {
	var result artifact.IpswDocument
	err := retryCAS(ctx, func(ctx context.Context) error {
		local, gen, err := s.Load(ctx)
		if err != nil {
			return err
		}
		merged := local.Clone()
		if err := mergeIpswInto(merged, incoming); err != nil {
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

// UpdateItem is the per-item write required by the index stage (spec.md
// §4.2): issuing a full-document overwrite for every newly-observed AppleDB
// entry would livelock under the mirror/extract workers' concurrent
// activity, so each new key is written individually under CAS.
func (s *IpswStore) UpdateItem(ctx context.Context, key string, fn func(current artifact.IpswArtifact, exists bool) (artifact.IpswArtifact, error)) error {
	return retryCAS(ctx, func(ctx context.Context) error {
		doc, gen, err := s.Load(ctx)
		if err != nil {
			return err
		}
		doc = doc.Clone()
		current, exists := doc.Artifacts[key]
		updated, err := fn(current, exists)
		if err != nil {
			return err
		}
		if exists {
			for i, src := range updated.Sources {
				if i >= len(current.Sources) {
					continue
				}
				if !artifact.Advances(current.Sources[i].ProcessingState, src.ProcessingState) {
					return errors.Errorf("refusing to regress state for %s source %d: %s -> %s", key, i, current.Sources[i].ProcessingState, src.ProcessingState)
				}
			}
		}
		doc.Artifacts[key] = updated
		return s.Save(ctx, doc, gen)
	})
}
