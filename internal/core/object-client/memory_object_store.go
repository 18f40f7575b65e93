package objectclient

import (
	"context"
	"sync"

	"github.com/markdave123-py/Polibase/internal/core"
)

var _ core.ObjectClient = (*MemoryObjectStore)(nil)

// MemoryObjectStore keeps blobs in a map. Used by tests and the
// STORE_DRIVER=memory development mode.
type MemoryObjectStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryObjectStore() *MemoryObjectStore {
	return &MemoryObjectStore{blobs: make(map[string][]byte)}
}

func (m *MemoryObjectStore) UploadFile(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	m.blobs[bucket+"/"+key] = cp
	return key, nil
}

func (m *MemoryObjectStore) DeleteFile(ctx context.Context, bucket, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, bucket+"/"+key)
	return nil
}

func (m *MemoryObjectStore) GetFile(ctx context.Context, bucket, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.blobs[bucket+"/"+key]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}
