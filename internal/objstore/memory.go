package objstore

import (
	"bytes"
	"context"
	"crypto/md5"
	"io"
	"strings"
	"sync"
)

// MemStore is an in-memory Store used as the test double for GCSStore,
// following the FilesystemAssetStore/GCSStore pairing in
// pkg/rebuild/rebuild/storage.go.
type MemStore struct {
	mu      sync.Mutex
	objects map[string]*memObject
	nextGen int64
}

type memObject struct {
	data       []byte
	generation int64
}

func NewMemStore() *MemStore {
	return &MemStore{objects: make(map[string]*memObject)}
}

func (s *MemStore) Reader(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, ErrNotExist
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (s *MemStore) Attrs(ctx context.Context, key string) (Attrs, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[key]
	if !ok {
		return Attrs{}, ErrNotExist
	}
	sum := md5.Sum(obj.data)
	return Attrs{Generation: obj.generation, MD5: sum[:], Size: int64(len(obj.data))}, nil
}

func (s *MemStore) WriteIfGenerationMatch(ctx context.Context, key string, data []byte, want int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.objects[key]
	var curGen int64
	if ok {
		curGen = cur.generation
	}
	if curGen != want {
		return ErrPreconditionFailed
	}
	s.nextGen++
	cp := make([]byte, len(data))
	copy(cp, data)
	s.objects[key] = &memObject{data: cp, generation: s.nextGen}
	return nil
}

func (s *MemStore) ListPrefix(ctx context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for k := range s.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// Put is a test helper for seeding an object directly, bypassing CAS.
func (s *MemStore) Put(key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextGen++
	cp := make([]byte, len(data))
	copy(cp, data)
	s.objects[key] = &memObject{data: cp, generation: s.nextGen}
}

var _ Store = &MemStore{}
