// Package symbolupload implements the content-addressed symbol upload
// protocol of spec.md §4.5: walk a symsort output tree, upload each file
// create-only into the symbols/ namespace with a bounded worker pool,
// treat PRECONDITION_FAILED as an idempotent duplicate rather than a
// failure, and upload the per-bundle index with collision-as-warning
// semantics.
package symbolupload

import (
	"context"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/getsentry/symx/internal/objstore"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is the default bounded worker pool size (spec.md
// §4.5).
const DefaultConcurrency = 10

// Stats summarizes one upload run for observability and the testable
// idempotence property (spec.md §8 property 7, scenario F).
type Stats struct {
	Uploaded  int64
	Duplicate int64
}

// Uploader uploads a symsort tree into the symbols/ namespace.
type Uploader struct {
	Store       objstore.Store
	Concurrency int
	Logger      *log.Logger
}

// UploadTree walks root (a symsort output directory for one platform) and
// uploads every regular file under "symbols/" + platform + "/" + its path
// relative to root, using a bounded worker pool.
func (u *Uploader) UploadTree(ctx context.Context, root, platform string) (Stats, error) {
	var stats Stats
	concurrency := u.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(concurrency)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return errors.Wrapf(err, "computing relative path for %s", path)
		}
		key := "symbols/" + platform + "/" + filepath.ToSlash(rel)
		eg.Go(func() error {
			dup, err := u.uploadOne(egCtx, path, key)
			if err != nil {
				return err
			}
			if dup {
				atomic.AddInt64(&stats.Duplicate, 1)
			} else {
				atomic.AddInt64(&stats.Uploaded, 1)
			}
			return nil
		})
		return nil
	})
	if err != nil {
		return stats, errors.Wrap(err, "walking symsort tree")
	}
	if err := eg.Wait(); err != nil {
		return stats, err
	}
	return stats, nil
}

// uploadOne uploads a single file create-only. A PRECONDITION_FAILED
// result is treated as a duplicate, not an error (spec.md §4.5: symsort's
// debug-id keying makes two files at the same key byte-equal by
// construction, so the first writer wins).
func (u *Uploader) uploadOne(ctx context.Context, localPath, key string) (duplicate bool, err error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return false, errors.Wrapf(err, "reading %s", localPath)
	}
	err = u.Store.WriteIfGenerationMatch(ctx, key, data, 0)
	if err == nil {
		return false, nil
	}
	if errors.Is(err, objstore.ErrPreconditionFailed) {
		u.logf("duplicate symbol at %s, skipping", key)
		return true, nil
	}
	return false, errors.Wrapf(err, "uploading %s", key)
}

// UploadBundleIndex uploads the per-bundle index blob. A collision (the
// index already exists) is a warning, not fatal — per spec.md §9 Open
// Question (a), BUNDLE_DUPLICATION_DETECTED is treated as a tagged
// warning with continuation, not a failed run.
func (u *Uploader) UploadBundleIndex(ctx context.Context, platform, bundleID string, data []byte) (collision bool, err error) {
	key := "symbols/" + platform + "/bundles/" + bundleID
	err = u.Store.WriteIfGenerationMatch(ctx, key, data, 0)
	if err == nil {
		return false, nil
	}
	if errors.Is(err, objstore.ErrPreconditionFailed) {
		u.logf("bundle index collision at %s", key)
		return true, nil
	}
	return false, errors.Wrapf(err, "uploading bundle index %s", key)
}

func (u *Uploader) logf(format string, args ...any) {
	if u.Logger != nil {
		u.Logger.Printf(format, args...)
	}
}
