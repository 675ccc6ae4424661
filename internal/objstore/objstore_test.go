package objstore

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func TestMemStoreWriteIfGenerationMatchCreateOnly(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	if err := s.WriteIfGenerationMatch(ctx, "k", []byte("v1"), 0); err != nil {
		t.Fatalf("first create-only write: %v", err)
	}
	if err := s.WriteIfGenerationMatch(ctx, "k", []byte("v2"), 0); !errors.Is(err, ErrPreconditionFailed) {
		t.Fatalf("second create-only write = %v, want ErrPreconditionFailed", err)
	}
}

func TestMemStoreWriteIfGenerationMatchUpdatesAtCorrectGeneration(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	if err := s.WriteIfGenerationMatch(ctx, "k", []byte("v1"), 0); err != nil {
		t.Fatal(err)
	}
	attrs, err := s.Attrs(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.WriteIfGenerationMatch(ctx, "k", []byte("v2"), attrs.Generation); err != nil {
		t.Fatalf("update at matching generation: %v", err)
	}
	if err := s.WriteIfGenerationMatch(ctx, "k", []byte("v3"), attrs.Generation); !errors.Is(err, ErrPreconditionFailed) {
		t.Fatalf("update at stale generation = %v, want ErrPreconditionFailed", err)
	}
}

func TestMemStoreReaderNotExist(t *testing.T) {
	s := NewMemStore()
	if _, err := s.Reader(context.Background(), "missing"); !errors.Is(err, ErrNotExist) {
		t.Fatalf("Reader on missing key = %v, want ErrNotExist", err)
	}
}

func TestMemStoreListPrefix(t *testing.T) {
	s := NewMemStore()
	s.Put("mirror/ota/a", []byte("a"))
	s.Put("mirror/ota/b", []byte("b"))
	s.Put("mirror/ipsw/c", []byte("c"))

	keys, err := s.ListPrefix(context.Background(), "mirror/ota/")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 {
		t.Fatalf("ListPrefix returned %d keys, want 2: %v", len(keys), keys)
	}
}

func TestGetReturnsDataAndGeneration(t *testing.T) {
	s := NewMemStore()
	s.Put("k", []byte("hello"))

	data, gen, err := Get(context.Background(), s, "k")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello" {
		t.Errorf("Get data = %q, want hello", data)
	}
	if gen == 0 {
		t.Error("Get generation should be non-zero after a write")
	}
}

func TestDownloadToFileCopiesBody(t *testing.T) {
	s := NewMemStore()
	s.Put("k", []byte("payload"))

	var buf bytes.Buffer
	if err := DownloadToFile(context.Background(), s, "k", &buf); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "payload" {
		t.Errorf("DownloadToFile = %q, want payload", buf.String())
	}
}
