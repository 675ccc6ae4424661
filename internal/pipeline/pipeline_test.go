package pipeline

import (
	"context"
	"testing"
	"time"
)

type fakeStage struct {
	remaining []Candidate
	processed []string
}

func (f *fakeStage) Candidates(ctx context.Context) ([]Candidate, error) {
	return f.remaining, nil
}

func (f *fakeStage) Process(ctx context.Context, c Candidate) error {
	f.processed = append(f.processed, c.Key)
	f.remaining = f.remaining[1:]
	return nil
}

func TestDriverProcessesUntilEmpty(t *testing.T) {
	stage := &fakeStage{remaining: []Candidate{{Key: "a"}, {Key: "b"}, {Key: "c"}}}
	d := &Driver{Stage: stage, Budget: time.Minute}
	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := stage.processed; len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Errorf("processed = %v, want [a b c]", got)
	}
}

func TestDriverStopsAtBudget(t *testing.T) {
	stage := &fakeStage{remaining: []Candidate{{Key: "a"}, {Key: "b"}}}
	d := &Driver{Stage: stage, Budget: -time.Second}
	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(stage.processed) != 0 {
		t.Errorf("expected zero processed items with an already-expired budget, got %v", stage.processed)
	}
}

type errStage struct{ err error }

func (e *errStage) Candidates(ctx context.Context) ([]Candidate, error) { return nil, e.err }
func (e *errStage) Process(ctx context.Context, c Candidate) error      { return nil }

func TestDriverPropagatesCandidateError(t *testing.T) {
	wantErr := context.DeadlineExceeded
	d := &Driver{Stage: &errStage{err: wantErr}}
	if err := d.Run(context.Background()); err != wantErr {
		t.Errorf("Run() err = %v, want %v", err, wantErr)
	}
}
