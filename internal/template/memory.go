package template

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps every version in memory.
type MemoryStore struct {
	mu       sync.RWMutex
	versions map[string][]Snapshot
	features map[string][]byte
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		versions: make(map[string][]Snapshot),
		features: make(map[string][]byte),
		now:      time.Now,
	}
}

func (m *MemoryStore) Put(ctx context.Context, id string, data []byte) (Snapshot, error) {
	if err := checkPut(id, data); err != nil {
		return Snapshot{}, err
	}
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Snapshot{
		ID:      id,
		Version: uint64(len(m.versions[id]) + 1),
		Data:    append([]byte(nil), data...),
		Digest:  Digest(data),
		Created: m.now().UTC(),
	}
	m.versions[id] = append(m.versions[id], s)
	return s.clone(), nil
}

func (m *MemoryStore) Latest(ctx context.Context, id string) (Snapshot, error) {
	if !ValidID(id) {
		return Snapshot{}, ErrInvalidID
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	vs := m.versions[id]
	if len(vs) == 0 {
		return Snapshot{}, ErrNotFound
	}
	return vs[len(vs)-1].clone(), nil
}

func (m *MemoryStore) Get(ctx context.Context, id string, version uint64) (Snapshot, error) {
	if !ValidID(id) {
		return Snapshot{}, ErrInvalidID
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	vs := m.versions[id]
	if version == 0 || version > uint64(len(vs)) {
		return Snapshot{}, ErrNotFound
	}
	return vs[version-1].clone(), nil
}

func (m *MemoryStore) SaveFeatures(digest string, data []byte) error {
	if !validDigest(digest) {
		return ErrInvalidDigest
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.features[digest] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryStore) LoadFeatures(digest string) ([]byte, error) {
	if !validDigest(digest) {
		return nil, ErrInvalidDigest
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.features[digest]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}
