// Package pipeline implements the driver shared by every stage (spec.md
// §4.7): reload the metadata document, compute the filtered/ordered
// candidate list, yield exactly one candidate to the stage, loop until the
// candidate list is empty or the wall-clock budget elapses.
package pipeline

import (
	"context"
	"log"
	"time"
)

// Candidate is the minimal handle a Stage hands back to the driver: just
// enough to log progress. All mutation happens inside Stage.Process, which
// reloads and re-derives whatever state it needs itself — the driver never
// caches artifact data across iterations (DESIGN NOTES: "iterator that
// re-reads").
type Candidate struct {
	Key string
}

// Stage is implemented once per (domain, pipeline stage) pair: OTA mirror,
// IPSW mirror, OTA extract, IPSW extract.
type Stage interface {
	// Candidates reloads the metadata document and returns the filtered,
	// newest-first candidate list. An empty, nil-error result ends the run.
	Candidates(ctx context.Context) ([]Candidate, error)
	// Process handles exactly one candidate. Per-item failures are recorded
	// as metadata state transitions, not returned as errors; Process only
	// returns an error for conditions that should abort the whole run (a
	// fatal identity mismatch, a CAS retry budget exhausted, storage
	// unreachable).
	Process(ctx context.Context, c Candidate) error
}

// DefaultBudget is the per-run wall-clock budget (spec.md §4.7): sized
// below common CI runner limits.
const DefaultBudget = 345 * time.Minute

// Driver runs a Stage to completion or until Budget elapses.
type Driver struct {
	Stage  Stage
	Budget time.Duration
	Logger *log.Logger
}

// Run executes the stage loop described in spec.md §4.7.
func (d *Driver) Run(ctx context.Context) error {
	budget := d.Budget
	if budget == 0 {
		budget = DefaultBudget
	}
	deadline := time.Now().Add(budget)
	processed := 0
	for {
		if time.Now().After(deadline) {
			d.logf("wall-clock budget exhausted after %d item(s), exiting cleanly", processed)
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		candidates, err := d.Stage.Candidates(ctx)
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			d.logf("no candidates remain after %d item(s), exiting", processed)
			return nil
		}
		if err := d.Stage.Process(ctx, candidates[0]); err != nil {
			return err
		}
		processed++
	}
}

func (d *Driver) logf(format string, args ...any) {
	if d.Logger != nil {
		d.Logger.Printf(format, args...)
	}
}
