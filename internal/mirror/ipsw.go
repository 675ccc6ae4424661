package mirror

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/getsentry/symx/internal/artifact"
	"github.com/getsentry/symx/internal/metastore"
	"github.com/getsentry/symx/internal/pipeline"
)

// IpswStage implements pipeline.Stage for the IPSW mirror stage. Each
// candidate identifies one source within one artifact: "{artifactKey}#{sourceIndex}".
type IpswStage struct {
	Meta     *metastore.IpswStore
	Mirrorer *Mirrorer
	Logger   *log.Logger
	RunID    int
}

var _ pipeline.Stage = (*IpswStage)(nil)

type ipswCandidate struct {
	artifactKey string
	sourceIndex int
	released    string
}

// Candidates applies mirror_filter (spec.md §6): artifact has a released
// date within the current or previous calendar year (or a date that is
// empty or does not parse) AND at least one source in state INDEXED.
// Candidates sort newest date first by string comparison; those with an
// empty date sort last.
func (s *IpswStage) Candidates(ctx context.Context) ([]pipeline.Candidate, error) {
	doc, _, err := s.Meta.Load(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	var matches []ipswCandidate
	for key, art := range doc.Artifacts {
		if !withinMirrorWindow(art.Released, now) {
			continue
		}
		for i, src := range art.Sources {
			if src.ProcessingState == artifact.Indexed {
				matches = append(matches, ipswCandidate{artifactKey: key, sourceIndex: i, released: art.Released})
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
		candidates[i] = pipeline.Candidate{Key: fmt.Sprintf("%s#%d", m.artifactKey, m.sourceIndex)}
	}
	return candidates, nil
}

// withinMirrorWindow reports whether a released date (YYYY-MM-DD, or
// empty) falls in the current or previous calendar year. A missing date
// is treated as eligible (ordered last by Candidates) rather than
// excluded, so artifacts AppleDB hasn't back-filled a date for are not
// silently stuck at INDEXED forever.
func withinMirrorWindow(released string, now time.Time) bool {
	if released == "" {
		return true
	}
	year, _, _ := strings.Cut(released, "-")
	y, err := strconv.Atoi(year)
	if err != nil {
		return true
	}
	return y == now.Year() || y == now.Year()-1
}

// Process mirrors one IPSW source and updates its metadata entry.
func (s *IpswStage) Process(ctx context.Context, c pipeline.Candidate) error {
	artifactKey, idx, err := parseIpswCandidateKey(c.Key)
	if err != nil {
		return err
	}
	return s.Meta.UpdateItem(ctx, artifactKey, func(current artifact.IpswArtifact, exists bool) (artifact.IpswArtifact, error) {
		if !exists || idx >= len(current.Sources) || current.Sources[idx].ProcessingState != artifact.Indexed {
			return current, nil // already advanced by a concurrent worker.
		}
		src := current.Sources[idx]
		key, outcome, err := s.Mirrorer.Mirror(ctx, Source{
			Domain:   artifact.IPSW,
			Platform: string(current.Platform),
			Version:  current.Version,
			Build:    current.Build,
			FileName: src.FileName,
			URL:      src.Link,
			SHA1:     src.Hashes.SHA1,
			Size:     src.Size,
		})
		if err != nil {
			return current, err
		}
		updated := current.Clone()
		if outcome == Failed {
			s.logf("mirroring failed for %s source %d", artifactKey, idx)
			updated.Sources[idx].ProcessingState = artifact.MirroringFailed
			updated.Sources[idx].LastRun = s.RunID
			return updated, nil
		}
		updated.Sources[idx].MirrorPath = key
		updated.Sources[idx].ProcessingState = artifact.Mirrored
		updated.Sources[idx].LastRun = s.RunID
		return updated, nil
	})
}

func parseIpswCandidateKey(key string) (artifactKey string, sourceIndex int, err error) {
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

func (s *IpswStage) logf(format string, args ...any) {
	if s.Logger != nil {
		s.Logger.Printf(format, args...)
	}
}
