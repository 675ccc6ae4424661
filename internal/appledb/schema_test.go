package appledb

import (
	"testing"

	"github.com/getsentry/symx/internal/artifact"
)

func TestParseOSFileRejectsMissingFields(t *testing.T) {
	if _, err := parseOSFile([]byte(`{"osStr":"iOS"}`)); err == nil {
		t.Error("expected error for missing version/build")
	}
}

func TestParseOSFileRejectsMalformedJSON(t *testing.T) {
	if _, err := parseOSFile([]byte(`not json`)); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestToIpswArtifactDiscardsZeroUsableSources(t *testing.T) {
	f := osFile{
		OSStr:   "iOS",
		Version: "17.0",
		Build:   "21A326",
		Sources: []osFileSource{
			{Type: "ipsw", Links: []osFileLink{{URL: "http://example.com/x.ipsw", Active: true}}}, // not https
			{Type: "other", Links: []osFileLink{{URL: "https://example.com/y.ipsw", Active: true}}},
		},
	}
	if _, ok := toIpswArtifact(f); ok {
		t.Error("expected no usable sources")
	}
}

func TestToIpswArtifactKeepsUsableSources(t *testing.T) {
	f := osFile{
		OSStr:    "iOS",
		Version:  "17.0",
		Build:    "21A326",
		Released: "2023-09-18",
		Sources: []osFileSource{
			{
				Type:      "ipsw",
				DeviceMap: []string{"iPhone14,2"},
				Links:     []osFileLink{{URL: "https://example.com/iPhone_17.0_21A326.ipsw", Active: true}},
				Size:      6_000_000_000,
			},
		},
	}
	art, ok := toIpswArtifact(f)
	if !ok {
		t.Fatal("expected usable source")
	}
	if art.Platform != artifact.IpswIOS || art.Build != "21A326" {
		t.Errorf("unexpected artifact: %+v", art)
	}
	if len(art.Sources) != 1 || art.Sources[0].FileName != "iPhone_17.0_21A326.ipsw" {
		t.Errorf("unexpected sources: %+v", art.Sources)
	}
	if !art.Sources[0].Devices.Contains("iPhone14,2") {
		t.Errorf("devices = %v, want iPhone14,2", art.Sources[0].Devices.Slice())
	}
}

func TestUsableSourceSkipsInactiveLinks(t *testing.T) {
	s := osFileSource{Type: "ipsw", Links: []osFileLink{{URL: "https://example.com/x.ipsw", Active: false}}}
	if _, ok := usableSource(s); ok {
		t.Error("expected inactive link to be rejected")
	}
}
