package objstore

import (
	"context"
	"io"
	"strings"

	gcs "cloud.google.com/go/storage"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSStore is the production Store backed by Google Cloud Storage. It
// follows pkg/rebuild/rebuild.GCSStore for the overall client/bucket
// wiring, but the generation-based CAS and create-only uploads below come
// directly from cloud.google.com/go/storage's own precondition support —
// the teacher's AssetStore has no generation concept at all.
type GCSStore struct {
	client *gcs.Client
	bucket string
	prefix string
}

// URI is a parsed "gs://[project@]bucket[/prefix]" storage URI.
type URI struct {
	Project string
	Bucket  string
	Prefix  string
}

// ParseURI parses the storage URI format of spec.md §6.
func ParseURI(raw string) (URI, error) {
	rest, ok := strings.CutPrefix(raw, "gs://")
	if !ok {
		return URI{}, errors.Errorf("unsupported storage URI %q: must start with gs://", raw)
	}
	var u URI
	if project, bucketAndPrefix, ok := strings.Cut(rest, "@"); ok {
		u.Project = project
		rest = bucketAndPrefix
	}
	u.Bucket, u.Prefix, _ = strings.Cut(rest, "/")
	if u.Bucket == "" {
		return URI{}, errors.Errorf("unsupported storage URI %q: missing bucket", raw)
	}
	return u, nil
}

// NewGCSStore constructs a GCSStore for the given storage URI. If
// tokenSource is non-nil it's used explicitly instead of application
// default credentials, matching the optional workload-identity override in
// SPEC_FULL.md's domain stack section.
func NewGCSStore(ctx context.Context, u URI, tokenSource oauth2.TokenSource) (*GCSStore, error) {
	var opts []option.ClientOption
	if tokenSource != nil {
		opts = append(opts, option.WithTokenSource(tokenSource))
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "creating GCS client")
	}
	return &GCSStore{client: client, bucket: u.Bucket, prefix: u.Prefix}, nil
}

func (s *GCSStore) object(key string) *gcs.ObjectHandle {
	if s.prefix == "" {
		return s.client.Bucket(s.bucket).Object(key)
	}
	return s.client.Bucket(s.bucket).Object(s.prefix + "/" + key)
}

func (s *GCSStore) Reader(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := s.object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return nil, ErrNotExist
		}
		return nil, errors.Wrapf(err, "opening reader for %s", key)
	}
	return r, nil
}

func (s *GCSStore) Attrs(ctx context.Context, key string) (Attrs, error) {
	attrs, err := s.object(key).Attrs(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return Attrs{}, ErrNotExist
		}
		return Attrs{}, errors.Wrapf(err, "reading attrs for %s", key)
	}
	return Attrs{Generation: attrs.Generation, MD5: attrs.MD5, Size: attrs.Size}, nil
}

func (s *GCSStore) WriteIfGenerationMatch(ctx context.Context, key string, data []byte, want int64) error {
	obj := s.object(key).If(gcs.Conditions{GenerationMatch: want})
	w := obj.NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return errors.Wrapf(err, "writing %s", key)
	}
	if err := w.Close(); err != nil {
		if isPreconditionFailed(err) {
			return ErrPreconditionFailed
		}
		return errors.Wrapf(err, "closing writer for %s", key)
	}
	return nil
}

func (s *GCSStore) ListPrefix(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	full := prefix
	if s.prefix != "" {
		full = s.prefix + "/" + prefix
	}
	it := s.client.Bucket(s.bucket).Objects(ctx, &gcs.Query{Prefix: full})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "listing objects")
		}
		key := attrs.Name
		if s.prefix != "" {
			key = strings.TrimPrefix(key, s.prefix+"/")
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func isPreconditionFailed(err error) bool {
	var apiErr interface{ Code() int }
	if errors.As(err, &apiErr) {
		return apiErr.Code() == 412
	}
	return strings.Contains(err.Error(), "412")
}

var _ Store = &GCSStore{}
