package otaupstream

import (
	"context"
	"testing"

	"github.com/getsentry/symx/internal/artifact"
	"github.com/getsentry/symx/internal/subproc"
)

type fakeRunner struct {
	byPlatform map[string]subproc.Result // key: "platform:beta"
}

func (f *fakeRunner) Run(ctx context.Context, dir, name string, args ...string) (subproc.Result, error) {
	var platform string
	beta := false
	for i, a := range args {
		if a == "--platform" && i+1 < len(args) {
			platform = args[i+1]
		}
		if a == "--beta" {
			beta = true
		}
	}
	key := platform
	if beta {
		key += ":beta"
	}
	return f.byPlatform[key], nil
}

func TestRetrieveSkipsForbiddenPlatform(t *testing.T) {
	f := &Fetcher{Runner: &fakeRunner{byPlatform: map[string]subproc.Result{
		"ios": {ExitCode: 1, Stderr: []byte("error: 403 Forbidden")},
	}}}
	doc, err := f.Retrieve(context.Background())
	if err != nil {
		t.Fatalf("Retrieve returned error: %v", err)
	}
	if len(doc) != 0 {
		t.Errorf("doc = %v, want empty (all platforms forbidden/empty)", doc)
	}
}

func TestRetrieveParsesRecords(t *testing.T) {
	body := `[{"url":"https://example.com/0123456789012345678901234567890123456789.zip","build":"21A100","version":"17.0","hash":"abc","hash_algorithm":"SHA-1","devices":["iPhone11,2"],"description":"beta 1"}]`
	f := &Fetcher{Runner: &fakeRunner{byPlatform: map[string]subproc.Result{
		"ios": {ExitCode: 0, Stdout: []byte(body)},
	}}}
	doc, err := f.Retrieve(context.Background())
	if err != nil {
		t.Fatalf("Retrieve returned error: %v", err)
	}
	art, ok := doc["0123456789012345678901234567890123456789"]
	if !ok {
		t.Fatalf("doc missing derived id; got keys %v", keys(doc))
	}
	if art.Build != "21A100" || art.Platform != artifact.PlatformIOS {
		t.Errorf("unexpected artifact: %+v", art)
	}
	if !art.Devices.Contains("iPhone11,2") {
		t.Errorf("devices = %v, want to contain iPhone11,2", art.Devices.Slice())
	}
}

func TestRetrieveTreatsEmptyStdoutAsNoRecords(t *testing.T) {
	// Every platform/channel combination this fakeRunner isn't told about
	// returns the zero-value subproc.Result (ExitCode 0, nil Stdout) — the
	// ordinary case of a platform/channel with nothing new to report.
	f := &Fetcher{Runner: &fakeRunner{byPlatform: map[string]subproc.Result{}}}
	doc, err := f.Retrieve(context.Background())
	if err != nil {
		t.Fatalf("Retrieve returned error on empty stdout: %v", err)
	}
	if len(doc) != 0 {
		t.Errorf("doc = %v, want empty", doc)
	}
}

func TestRetrieveTagsBetaKeyOnChannelCollision(t *testing.T) {
	// A beta and a later release can share the same zip id. Both must
	// survive in the fetched document under distinct keys.
	body := `[{"url":"https://example.com/0123456789012345678901234567890123456789.zip","build":"21A100","version":"17.0","hash":"abc","hash_algorithm":"SHA-1","devices":["iPhone11,2"]}]`
	f := &Fetcher{Runner: &fakeRunner{byPlatform: map[string]subproc.Result{
		"ios":      {ExitCode: 0, Stdout: []byte(body)},
		"ios:beta": {ExitCode: 0, Stdout: []byte(body)},
	}}}
	doc, err := f.Retrieve(context.Background())
	if err != nil {
		t.Fatalf("Retrieve returned error: %v", err)
	}
	const id = "0123456789012345678901234567890123456789"
	if _, ok := doc[id]; !ok {
		t.Errorf("doc missing release key %q; got keys %v", id, keys(doc))
	}
	betaKey := artifact.BetaDuplicateKey(id)
	if _, ok := doc[betaKey]; !ok {
		t.Errorf("doc missing tagged beta key %q; got keys %v", betaKey, keys(doc))
	}
}

func TestDeriveIDRejectsUnexpectedFormat(t *testing.T) {
	if _, err := deriveID("https://example.com/too-short.zip"); err == nil {
		t.Error("expected error for short id")
	}
	if _, err := deriveID("https://example.com/notazip"); err == nil {
		t.Error("expected error for missing .zip suffix")
	}
}

func keys(d artifact.OtaDocument) []string {
	var ks []string
	for k := range d {
		ks = append(ks, k)
	}
	return ks
}
