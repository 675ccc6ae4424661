package mirror

import (
	"context"
	"log"
	"sort"

	"github.com/getsentry/symx/internal/artifact"
	"github.com/getsentry/symx/internal/metastore"
	"github.com/getsentry/symx/internal/pipeline"
)

// OtaStage implements pipeline.Stage for the OTA mirror stage.
type OtaStage struct {
	Meta     *metastore.OtaStore
	Mirrorer *Mirrorer
	Logger   *log.Logger
	// RunID is this process invocation's workflow-run identifier, recorded
	// on every mutated entry's last_run field (DESIGN NOTES: threaded
	// explicitly from the entrypoint rather than read from the environment).
	RunID int
}

var _ pipeline.Stage = (*OtaStage)(nil)

// Candidates returns OTA artifacts in state INDEXED, newest-first. OTA
// records carry no released date (unlike IPSW), so mirror_filter here is
// simply "state == INDEXED"; ordering falls back to Build descending as
// the best available proxy for recency.
func (s *OtaStage) Candidates(ctx context.Context) ([]pipeline.Candidate, error) {
	doc, _, err := s.Meta.Load(ctx)
	if err != nil {
		return nil, err
	}
	var keys []string
	for key, art := range doc {
		if art.ProcessingState == artifact.Indexed {
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

// Process mirrors one OTA artifact and updates its metadata entry.
func (s *OtaStage) Process(ctx context.Context, c pipeline.Candidate) error {
	return s.Meta.UpdateItem(ctx, c.Key, func(current artifact.OtaArtifact, exists bool) (artifact.OtaArtifact, error) {
		if !exists || current.ProcessingState != artifact.Indexed {
			return current, nil // already advanced by a concurrent worker.
		}
		key, outcome, err := s.Mirrorer.Mirror(ctx, Source{
			Domain:   artifact.OTA,
			Platform: string(current.Platform),
			Version:  current.Version,
			Build:    current.Build,
			FileName: fileNameFromURL(current.URL),
			URL:      current.URL,
			SHA1:     current.Hash,
		})
		if err != nil {
			return current, err
		}
		if outcome == Failed {
			s.logf("mirroring failed for %s", c.Key)
			current.ProcessingState = artifact.MirroringFailed
			current.LastRun = s.RunID
			return current, nil
		}
		current.DownloadPath = key
		current.ProcessingState = artifact.Mirrored
		current.LastRun = s.RunID
		return current, nil
	})
}

func (s *OtaStage) logf(format string, args ...any) {
	if s.Logger != nil {
		s.Logger.Printf(format, args...)
	}
}

func fileNameFromURL(url string) string {
	for i := len(url) - 1; i >= 0; i-- {
		if url[i] == '/' {
			return url[i+1:]
		}
	}
	return url
}
