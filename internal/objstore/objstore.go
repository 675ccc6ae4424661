// Package objstore provides a small CAS-aware blob storage abstraction over
// the production object store, plus an in-memory implementation for tests.
package objstore

import (
	"context"
	"io"

	"github.com/pkg/errors"
)

// ErrNotExist indicates the requested object does not exist.
var ErrNotExist = errors.New("object does not exist")

// ErrPreconditionFailed indicates a generation precondition did not hold
// (the object changed, or already existed, since the caller last observed
// it).
var ErrPreconditionFailed = errors.New("generation precondition failed")

// Attrs describes the metadata of an existing object.
type Attrs struct {
	// Generation is the store's monotonically-increasing per-object version.
	Generation int64
	// MD5 is the store's per-object content hash as raw digest bytes (the
	// same form md5.Sum produces), so it can be compared directly with
	// another MD5 or a locally-computed md5.Sum.
	MD5 []byte
	// Size is the object's size in bytes.
	Size int64
}

// Store is the minimal interface the pipeline needs from the object store.
// Every method that writes with a generation precondition leaves retry
// policy to the caller: CAS conflicts are not retried inside the adapter,
// since the caller must re-run its merge step between attempts.
type Store interface {
	// Reader opens the current generation of an object for reading.
	Reader(ctx context.Context, key string) (io.ReadCloser, error)
	// Attrs reads an object's metadata without downloading its body.
	// Returns ErrNotExist if the object does not exist.
	Attrs(ctx context.Context, key string) (Attrs, error)
	// WriteIfGenerationMatch uploads data, succeeding only if the object's
	// current generation equals want (0 means "must not exist").
	// Returns ErrPreconditionFailed on mismatch.
	WriteIfGenerationMatch(ctx context.Context, key string, data []byte, want int64) error
	// ListPrefix lists object keys with the given prefix. Used only by
	// one-off migrations, not the hot path (spec.md §4.6).
	ListPrefix(ctx context.Context, prefix string) ([]string, error)
}

// Get reads an object fully into memory along with its generation. Returns
// ErrNotExist if the object is absent.
func Get(ctx context.Context, s Store, key string) ([]byte, int64, error) {
	attrs, err := s.Attrs(ctx, key)
	if err != nil {
		return nil, 0, err
	}
	r, err := s.Reader(ctx, key)
	if err != nil {
		return nil, 0, err
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, errors.Wrap(err, "reading object body")
	}
	return data, attrs.Generation, nil
}

// DownloadToFile streams an object's body to w, used by the extract stages
// to pull mirrored blobs into scratch files.
func DownloadToFile(ctx context.Context, s Store, key string, w io.Writer) error {
	r, err := s.Reader(ctx, key)
	if err != nil {
		return err
	}
	defer r.Close()
	if _, err := io.Copy(w, r); err != nil {
		return errors.Wrap(err, "copying object body")
	}
	return nil
}
