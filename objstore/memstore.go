package objstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is an in-process Client used by this module's own tests, the way
// the teacher's devtools/tutils package fakes out cluster dependencies for
// unit tests instead of requiring a live bucket.
type MemStore struct {
	mu   sync.Mutex
	data map[string]memEntry
}

type memEntry struct {
	bytes []byte
	etag  string
	mtime time.Time
}

func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string]memEntry)}
}

func (m *MemStore) Get(_ context.Context, key string) ([]byte, string, time.Time, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.data[key]
	if !ok {
		return nil, "", time.Time{}, 0, NewNotFoundErr(key)
	}
	cp := make([]byte, len(e.bytes))
	copy(cp, e.bytes)
	return cp, e.etag, e.mtime, int64(len(cp)), nil
}

func (m *MemStore) GetRange(ctx context.Context, key string, off, length int64) ([]byte, error) {
	data, _, _, _, err := m.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if off < 0 || off+length > int64(len(data)) {
		return nil, NewFatalErr(key, errRangeOutOfBounds)
	}
	return data[off : off+length], nil
}

func (m *MemStore) GetJSON(ctx context.Context, key string, v interface{}) error {
	data, _, _, _, err := m.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return NewFatalErr(key, err)
	}
	return nil
}

func (m *MemStore) Put(_ context.Context, key string, data []byte) (string, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	etag := uuid.NewString()
	m.data[key] = memEntry{bytes: cp, etag: etag, mtime: time.Now()}
	return etag, int64(len(cp)), nil
}

func (m *MemStore) PutJSON(ctx context.Context, key string, v interface{}) (string, int64, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", 0, NewFatalErr(key, err)
	}
	return m.Put(ctx, key, data)
}

func (m *MemStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok, nil
}

func (m *MemStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; !ok {
		return NewNotFoundErr(key)
	}
	delete(m.data, key)
	return nil
}

func (m *MemStore) List(_ context.Context, prefix, _ string) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Entry
	for k, e := range m.data {
		if len(prefix) > 0 && (len(k) < len(prefix) || k[:len(prefix)] != prefix) {
			continue
		}
		out = append(out, Entry{Key: k, ETag: e.etag, LastModified: e.mtime, Size: int64(len(e.bytes))})
	}
	return out, nil
}

type memStoreErr string

func (e memStoreErr) Error() string { return string(e) }

const errRangeOutOfBounds = memStoreErr("requested range out of bounds")
