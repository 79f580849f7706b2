package store

import (
	"context"
	"sync"
)

// MemoryBackend is an in-memory Backend. It is safe for concurrent use
// and intended for tests and ephemeral sessions.
type MemoryBackend struct {
	mutex   sync.RWMutex
	buckets map[string]map[string]Record
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		buckets: make(map[string]map[string]Record),
	}
}

func (m *MemoryBackend) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	rec, ok := m.buckets[bucket][key]
	if !ok {
		return nil, ErrNotFound
	}
	value := make([]byte, len(rec.Value))
	copy(value, rec.Value)
	return value, nil
}

func (m *MemoryBackend) Put(ctx context.Context, bucket string, rec Record) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.buckets[bucket] == nil {
		m.buckets[bucket] = make(map[string]Record)
	}
	stored := Record{
		Key:     rec.Key,
		Indexes: make(map[string]string, len(rec.Indexes)),
		Value:   make([]byte, len(rec.Value)),
	}
	for k, v := range rec.Indexes {
		stored.Indexes[k] = v
	}
	copy(stored.Value, rec.Value)
	m.buckets[bucket][rec.Key] = stored
	return nil
}

func (m *MemoryBackend) Delete(ctx context.Context, bucket, key string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	delete(m.buckets[bucket], key)
	return nil
}

func (m *MemoryBackend) AllByIndex(ctx context.Context, bucket, index, value string) ([][]byte, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var out [][]byte
	for _, rec := range m.buckets[bucket] {
		if rec.Indexes[index] == value {
			v := make([]byte, len(rec.Value))
			copy(v, rec.Value)
			out = append(out, v)
		}
	}
	return out, nil
}

func (m *MemoryBackend) AllByIndexUpTo(ctx context.Context, bucket, index, max string) ([][]byte, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var out [][]byte
	for _, rec := range m.buckets[bucket] {
		idx, ok := rec.Indexes[index]
		if !ok || idx > max {
			continue
		}
		v := make([]byte, len(rec.Value))
		copy(v, rec.Value)
		out = append(out, v)
	}
	return out, nil
}

func (m *MemoryBackend) Usage(ctx context.Context) (int64, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var total int64
	for _, bucket := range m.buckets {
		for _, rec := range bucket {
			total += int64(len(rec.Value))
		}
	}
	return total, nil
}

func (m *MemoryBackend) Close() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.buckets = make(map[string]map[string]Record)
	return nil
}
