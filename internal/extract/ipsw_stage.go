package extract

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/getsentry/symx/internal/artifact"
	"github.com/getsentry/symx/internal/metastore"
	"github.com/getsentry/symx/internal/objstore"
	"github.com/getsentry/symx/internal/pipeline"
	"github.com/getsentry/symx/internal/symbolupload"
	"github.com/getsentry/symx/internal/symxlog"
	"github.com/pkg/errors"
)

// IpswStage implements pipeline.Stage for the IPSW extract stage (spec.md
// §4.4). Each candidate identifies one source: "{artifactKey}#{sourceIndex}".
type IpswStage struct {
	Meta       *metastore.IpswStore
	Store      objstore.Store
	Procedure  *Procedure
	Symsorter  *Symsorter
	Uploader   *symbolupload.Uploader
	ScratchDir string
	Logger     *log.Logger
	RunID      int
}

var _ pipeline.Stage = (*IpswStage)(nil)

// Candidates returns sources in state MIRRORED (extract_filter).
func (s *IpswStage) Candidates(ctx context.Context) ([]pipeline.Candidate, error) {
	doc, _, err := s.Meta.Load(ctx)
	if err != nil {
		return nil, err
	}
	type match struct {
		key      string
		released string
	}
	var matches []match
	for key, art := range doc.Artifacts {
		for i, src := range art.Sources {
			if src.ProcessingState == artifact.Mirrored {
				matches = append(matches, match{key: fmt.Sprintf("%s#%d", key, i), released: art.Released})
			}
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		ri, rj := matches[i].released, matches[j].released
		if ri == "" {
			return false
		}
		if rj == "" {
			return true
		}
		return ri > rj
	})
	candidates := make([]pipeline.Candidate, len(matches))
	for i, m := range matches {
		candidates[i] = pipeline.Candidate{Key: m.key}
	}
	return candidates, nil
}

// Process downloads the mirrored IPSW source, runs the DSC extraction
// procedure plus whole-volume symsort, uploads symbols, and updates
// metadata.
func (s *IpswStage) Process(ctx context.Context, c pipeline.Candidate) error {
	artifactKey, idx, err := parseIpswExtractKey(c.Key)
	if err != nil {
		return err
	}
	scratch, err := os.MkdirTemp(s.ScratchDir, "symx-ipsw-extract-")
	if err != nil {
		return errors.Wrap(err, "creating scratch dir")
	}
	defer os.RemoveAll(scratch)

	capture := symxlog.NewCapture(c.Key, s.writer())
	logf := capture.Logger().Printf

	return s.Meta.UpdateItem(ctx, artifactKey, func(current artifact.IpswArtifact, exists bool) (artifact.IpswArtifact, error) {
		if !exists || idx >= len(current.Sources) || current.Sources[idx].ProcessingState != artifact.Mirrored {
			return current, nil
		}
		updated := current.Clone()
		src := &updated.Sources[idx]

		ipswPath := filepath.Join(scratch, src.FileName)
		if err := s.downloadAndVerify(ctx, src.MirrorPath, src.Hashes.SHA1, ipswPath); err != nil {
			logf("mirror blob corrupt for %s: %v", c.Key, err)
			src.ProcessingState = artifact.MirrorCorrupt
			src.LastRun = s.RunID
			src.LogExcerpt = capture.String()
			return updated, nil
		}

		isMacOS := current.Platform == artifact.IpswMacOS
		res, procErr := s.Procedure.ExtractIPSW(ctx, ipswPath, scratch, isMacOS)
		if procErr != nil {
			logf("extraction failed for %s: %v", c.Key, procErr)
			src.ProcessingState = artifact.SymbolExtractionFailed
			src.LastRun = s.RunID
			src.LogExcerpt = capture.String()
			return updated, nil
		}
		switch res.Outcome {
		case NoDSCFound:
			src.ProcessingState = artifact.DSCExtractionFailed
			src.LastRun = s.RunID
			src.LogExcerpt = capture.String()
			return updated, nil
		case AllSplitsFailed:
			src.ProcessingState = artifact.SymbolExtractionFailed
			src.LastRun = s.RunID
			src.LogExcerpt = capture.String()
			return updated, nil
		}

		bundleID := IpswBundleID(src.FileName)
		platform := string(current.Platform)
		for _, dir := range res.SplitDirs {
			if _, err := s.Uploader.UploadTree(ctx, dir, platform); err != nil {
				logf("symbol upload failed for %s: %v", c.Key, err)
				src.ProcessingState = artifact.SymbolExtractionFailed
				src.LastRun = s.RunID
				src.LogExcerpt = capture.String()
				return updated, nil
			}
		}
		// Capture non-DSC binaries by symsorting the mounted system image
		// whole (spec.md §4.4, IPSW branch).
		if s.Procedure.Mounter != nil && s.Symsorter != nil {
			if err := s.Symsorter.SortMountedVolume(ctx, s.Procedure.Mounter, ipswPath, filepath.Join(scratch, "volume-symbols"), platform, bundleID); err != nil {
				logf("whole-volume symsort failed for %s (non-fatal): %v", c.Key, err)
			} else if _, err := s.Uploader.UploadTree(ctx, filepath.Join(scratch, "volume-symbols"), platform); err != nil {
				logf("whole-volume symbol upload failed for %s (non-fatal): %v", c.Key, err)
			}
		}

		collision, err := s.Uploader.UploadBundleIndex(ctx, platform, bundleID, []byte(bundleID))
		if err != nil {
			logf("bundle index upload failed for %s: %v", c.Key, err)
			src.ProcessingState = artifact.SymbolExtractionFailed
			src.LastRun = s.RunID
			src.LogExcerpt = capture.String()
			return updated, nil
		}
		if collision {
			logf("bundle duplication detected for %s, continuing", c.Key)
			src.ProcessingState = artifact.BundleDuplicationDetected
			src.LogExcerpt = capture.String()
		} else {
			src.ProcessingState = artifact.SymbolsExtracted
		}
		src.LastRun = s.RunID
		return updated, nil
	})
}

func (s *IpswStage) downloadAndVerify(ctx context.Context, mirrorPath, wantHash, localPath string) error {
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

func parseIpswExtractKey(key string) (artifactKey string, sourceIndex int, err error) {
	parts := strings.SplitN(key, "#", 2)
	if len(parts) != 2 {
		return "", 0, fmt.Errorf("malformed candidate key %q", key)
	}
	idx, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, fmt.Errorf("malformed candidate key %q: %w", key, err)
	}
	return parts[0], idx, nil
}

// writer exposes the stage logger's underlying io.Writer for tee-ing
// per-artifact capture output through to the live stage log, or nil to
// capture without a live tail.
func (s *IpswStage) writer() io.Writer {
	if s.Logger == nil {
		return nil
	}
	return s.Logger.Writer()
}
