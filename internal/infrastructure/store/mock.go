// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// errWrongLastSequence mimics the error JetStream returns on a failed conditional update.
var errWrongLastSequence = errors.New("nats: wrong last sequence: 3")

// mockKeyValueEntry implements jetstream.KeyValueEntry for testing
type mockKeyValueEntry struct {
	bucket   string
	key      string
	value    []byte
	revision uint64
	created  time.Time
}

func (m *mockKeyValueEntry) Key() string                     { return m.key }
func (m *mockKeyValueEntry) Value() []byte                   { return m.value }
func (m *mockKeyValueEntry) Revision() uint64                { return m.revision }
func (m *mockKeyValueEntry) Created() time.Time              { return m.created }
func (m *mockKeyValueEntry) Delta() uint64                   { return 0 }
func (m *mockKeyValueEntry) Operation() jetstream.KeyValueOp { return jetstream.KeyValuePut }
func (m *mockKeyValueEntry) Bucket() string                  { return m.bucket }

// mockKeyLister implements jetstream.KeyLister for testing
type mockKeyLister struct {
	keys []string
}

func (m *mockKeyLister) Keys() <-chan string {
	ch := make(chan string, len(m.keys))
	for _, key := range m.keys {
		ch <- key
	}
	close(ch)
	return ch
}

func (m *mockKeyLister) Stop() error { return nil }

// MockKeyValue is an in-memory INatsKeyValue used by tests across packages.
// It is safe for concurrent use and honours revisions the way JetStream does,
// so compare-and-set loops can be exercised without a server.
type MockKeyValue struct {
	mu        sync.Mutex
	bucket    string
	data      map[string][]byte
	revisions map[string]uint64
	sequence  uint64

	// Injectable failures
	GetError    error
	PutError    error
	CreateError error
	UpdateError error
	DeleteError error
	ListError   error
}

var _ INatsKeyValue = (*MockKeyValue)(nil)

// NewMockKeyValue creates an empty in-memory bucket.
func NewMockKeyValue(bucket string) *MockKeyValue {
	return &MockKeyValue{
		bucket:    bucket,
		data:      make(map[string][]byte),
		revisions: make(map[string]uint64),
	}
}

// Len returns the number of keys in the bucket.
func (m *MockKeyValue) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

// Raw returns the stored value of key, if any.
func (m *MockKeyValue) Raw(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.data[key]
	return value, ok
}

// next returns the next bucket-wide revision, as JetStream uses stream sequences.
func (m *MockKeyValue) next() uint64 {
	m.sequence++
	return m.sequence
}

func (m *MockKeyValue) store(key string, data []byte) uint64 {
	value := make([]byte, len(data))
	copy(value, data)
	m.data[key] = value
	revision := m.next()
	m.revisions[key] = revision
	return revision
}

func (m *MockKeyValue) ListKeys(ctx context.Context, opts ...jetstream.WatchOpt) (jetstream.KeyLister, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListError != nil {
		return nil, m.ListError
	}
	keys := make([]string, 0, len(m.data))
	for key := range m.data {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return &mockKeyLister{keys: keys}, nil
}

func (m *MockKeyValue) Get(ctx context.Context, key string) (jetstream.KeyValueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetError != nil {
		return nil, m.GetError
	}
	value, exists := m.data[key]
	if !exists {
		return nil, jetstream.ErrKeyNotFound
	}
	return &mockKeyValueEntry{
		bucket:   m.bucket,
		key:      key,
		value:    value,
		revision: m.revisions[key],
		created:  time.Now(),
	}, nil
}

func (m *MockKeyValue) Put(ctx context.Context, key string, data []byte) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PutError != nil {
		return 0, m.PutError
	}
	return m.store(key, data), nil
}

func (m *MockKeyValue) Create(ctx context.Context, key string, data []byte, opts ...jetstream.KVCreateOpt) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateError != nil {
		return 0, m.CreateError
	}
	if _, exists := m.data[key]; exists {
		return 0, jetstream.ErrKeyExists
	}
	return m.store(key, data), nil
}

func (m *MockKeyValue) Update(ctx context.Context, key string, data []byte, expectedRevision uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpdateError != nil {
		return 0, m.UpdateError
	}
	currentRevision, exists := m.revisions[key]
	if !exists {
		return 0, jetstream.ErrKeyNotFound
	}
	if currentRevision != expectedRevision {
		return 0, errWrongLastSequence
	}
	return m.store(key, data), nil
}

// Delete ignores revision options; tests that need conditional deletes use Update.
func (m *MockKeyValue) Delete(ctx context.Context, key string, opts ...jetstream.KVDeleteOpt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DeleteError != nil {
		return m.DeleteError
	}
	if _, exists := m.data[key]; !exists {
		return jetstream.ErrKeyNotFound
	}
	delete(m.data, key)
	delete(m.revisions, key)
	return nil
}
