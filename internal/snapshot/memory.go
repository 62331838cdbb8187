package snapshot

import (
	"context"
	"sort"
	"sync"

	"github.com/tradelab/draudit/pkg/errclass"
	"github.com/tradelab/draudit/pkg/jsonutil"
	"github.com/tradelab/draudit/pkg/model"
)

// MemoryStore is an in-process Store. Stored bytes go through the same
// read-time check as the persistent backends.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[model.HashValue][]byte
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[model.HashValue][]byte)}
}

// Put implements Store.
func (s *MemoryStore) Put(ctx context.Context, payload jsonutil.Value) (model.HashValue, error) {
	data, hash, err := Encode(payload)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[hash]; !ok {
		s.blobs[hash] = data
	}
	return hash, nil
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, hash model.HashValue) (jsonutil.Value, error) {
	if err := checkAddress(hash); err != nil {
		return jsonutil.Value{}, err
	}
	s.mu.RLock()
	data, ok := s.blobs[hash]
	s.mu.RUnlock()
	if !ok {
		return jsonutil.Value{}, errclass.ErrNotFound.WithMessagef("snapshot %s", hash)
	}
	return Decode(hash, data)
}

// Exists implements Store.
func (s *MemoryStore) Exists(ctx context.Context, hash model.HashValue) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blobs[hash]
	return ok, nil
}

// List implements Store.
func (s *MemoryStore) List(ctx context.Context) ([]model.HashValue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hashes := make([]model.HashValue, 0, len(s.blobs))
	for h := range s.blobs {
		hashes = append(hashes, h)
	}
	sort.Slice(hashes, func(i, j int) bool { return hashes[i] < hashes[j] })
	return hashes, nil
}

// Replace overwrites the stored bytes for hash without any check. It
// exists to simulate storage corruption.
func (s *MemoryStore) Replace(hash model.HashValue, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[hash] = append([]byte(nil), data...)
}

// Delete removes hash from the store.
func (s *MemoryStore) Delete(hash model.HashValue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, hash)
}
