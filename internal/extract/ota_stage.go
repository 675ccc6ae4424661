package extract

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/getsentry/symx/internal/artifact"
	"github.com/getsentry/symx/internal/metastore"
	"github.com/getsentry/symx/internal/objstore"
	"github.com/getsentry/symx/internal/pipeline"
	"github.com/getsentry/symx/internal/symbolupload"
	"github.com/getsentry/symx/internal/symxlog"
	"github.com/pkg/errors"
)

// OtaStage implements pipeline.Stage for the OTA extract stage (spec.md
// §4.4).
type OtaStage struct {
	Meta       *metastore.OtaStore
	Store      objstore.Store
	Procedure  *Procedure
	Uploader   *symbolupload.Uploader
	ScratchDir string
	Logger     *log.Logger
	RunID      int
}

var _ pipeline.Stage = (*OtaStage)(nil)

// Candidates returns OTA artifacts in state MIRRORED (extract_filter).
func (s *OtaStage) Candidates(ctx context.Context) ([]pipeline.Candidate, error) {
	doc, _, err := s.Meta.Load(ctx)
	if err != nil {
		return nil, err
	}
	var keys []string
	for key, art := range doc {
		if art.ProcessingState == artifact.Mirrored {
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return doc[keys[i]].Build > doc[keys[j]].Build })
	candidates := make([]pipeline.Candidate, len(keys))
	for i, k := range keys {
		candidates[i] = pipeline.Candidate{Key: k}
	}
	return candidates, nil
}

// Process downloads the mirrored blob, runs the DSC extraction procedure,
// uploads resulting symbols, and updates metadata (spec.md §4.4 steps 1-6).
func (s *OtaStage) Process(ctx context.Context, c pipeline.Candidate) error {
	scratch, err := os.MkdirTemp(s.ScratchDir, "symx-ota-extract-")
	if err != nil {
		return errors.Wrap(err, "creating scratch dir")
	}
	defer os.RemoveAll(scratch)

	capture := symxlog.NewCapture(c.Key, s.writer())
	logf := capture.Logger().Printf

	return s.Meta.UpdateItem(ctx, c.Key, func(current artifact.OtaArtifact, exists bool) (artifact.OtaArtifact, error) {
		if !exists || current.ProcessingState != artifact.Mirrored {
			return current, nil
		}
		zipPath := filepath.Join(scratch, "artifact.zip")
		if err := s.downloadAndVerify(ctx, current.DownloadPath, current.Hash, zipPath); err != nil {
			logf("mirror blob corrupt for %s: %v", c.Key, err)
			current.ProcessingState = artifact.MirrorCorrupt
			current.LastRun = s.RunID
			current.LogExcerpt = capture.String()
			return current, nil
		}

		var res Result
		var procErr error
		if IsCryptexPlatform(current.Version) {
			res, procErr = s.Procedure.ExtractCryptexOTA(ctx, zipPath, scratch)
		} else {
			res, procErr = s.Procedure.ExtractLegacyOTA(ctx, zipPath, scratch)
		}
		if procErr != nil {
			logf("extraction failed for %s: %v", c.Key, procErr)
			current.ProcessingState = artifact.SymbolExtractionFailed
			current.LastRun = s.RunID
			current.LogExcerpt = capture.String()
			return current, nil
		}
		switch res.Outcome {
		case PartialUpdate:
			// Not an error, but extract_filter only selects MIRRORED
			// sources, so landing here naturally prevents infinite
			// retries without a dedicated terminal state (spec.md §4.4).
			current.ProcessingState = artifact.DSCExtractionFailed
			current.LastRun = s.RunID
			current.LogExcerpt = capture.String()
			return current, nil
		case NoDSCFound:
			current.ProcessingState = artifact.DSCExtractionFailed
			current.LastRun = s.RunID
			current.LogExcerpt = capture.String()
			return current, nil
		case AllSplitsFailed:
			current.ProcessingState = artifact.SymbolExtractionFailed
			current.LastRun = s.RunID
			current.LogExcerpt = capture.String()
			return current, nil
		}

		bundleID := OtaBundleID(c.Key)
		collision := false
		for _, dir := range res.SplitDirs {
			if _, err := s.Uploader.UploadTree(ctx, dir, string(current.Platform)); err != nil {
				logf("symbol upload failed for %s: %v", c.Key, err)
				current.ProcessingState = artifact.SymbolExtractionFailed
				current.LastRun = s.RunID
				current.LogExcerpt = capture.String()
				return current, nil
			}
		}
		if col, err := s.Uploader.UploadBundleIndex(ctx, string(current.Platform), bundleID, []byte(bundleID)); err != nil {
			logf("bundle index upload failed for %s: %v", c.Key, err)
			current.ProcessingState = artifact.SymbolExtractionFailed
			current.LastRun = s.RunID
			current.LogExcerpt = capture.String()
			return current, nil
		} else {
			collision = col
		}
		if collision {
			logf("bundle duplication detected for %s, continuing", c.Key)
			current.ProcessingState = artifact.BundleDuplicationDetected
			current.LogExcerpt = capture.String()
		} else {
			current.ProcessingState = artifact.SymbolsExtracted
		}
		current.LastRun = s.RunID
		return current, nil
	})
}

// downloadAndVerify downloads the mirror blob to localPath and checks its
// SHA-1 still matches the recorded hash (spec.md §4.4 step 2).
func (s *OtaStage) downloadAndVerify(ctx context.Context, mirrorPath, wantHash, localPath string) error {
	f, err := os.Create(localPath)
	if err != nil {
		return errors.Wrap(err, "creating scratch file")
	}
	defer f.Close()
	if err := objstore.DownloadToFile(ctx, s.Store, mirrorPath, f); err != nil {
		return errors.Wrap(err, "downloading mirror blob")
	}
	if wantHash == "" {
		return nil
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return errors.Wrap(err, "seeking scratch file")
	}
	h := sha1.New()
	if _, err := io.Copy(h, f); err != nil {
		return errors.Wrap(err, "hashing scratch file")
	}
	if got := hex.EncodeToString(h.Sum(nil)); got != wantHash {
		return errors.Errorf("hash mismatch: got %s want %s", got, wantHash)
	}
	return nil
}

// writer exposes the stage logger's underlying io.Writer for tee-ing
// per-artifact capture output through to the live stage log, or nil to
// capture without a live tail.
func (s *OtaStage) writer() io.Writer {
	if s.Logger == nil {
		return nil
	}
	return s.Logger.Writer()
}
