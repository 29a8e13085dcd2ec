package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
)

// MockStore is an in-memory Store implementation for tests.
type MockStore struct {
	mu      sync.RWMutex
	objects map[string]mockObject

	// FailPut, when set, is returned by every Put. Lets tests simulate an
	// upload outage.
	FailPut error

	// FailHead, when set, is returned by every Head.
	FailHead error

	puts int
}

type mockObject struct {
	data        []byte
	contentType string
}

func NewMockStore() *MockStore {
	return &MockStore{objects: make(map[string]mockObject)}
}

func (s *MockStore) Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailPut != nil {
		return &ObjectError{Op: "Put", Key: key, Err: s.FailPut}
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return &ObjectError{Op: "Put", Key: key, Err: err}
	}
	if int64(len(data)) != size {
		return &ObjectError{Op: "Put", Key: key, Err: fmt.Errorf("size mismatch: declared %d, read %d", size, len(data))}
	}
	s.objects[key] = mockObject{data: data, contentType: contentType}
	s.puts++
	return nil
}

func (s *MockStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[key]
	if !ok {
		return nil, &ObjectError{Op: "Get", Key: key, Err: ErrNotFound}
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (s *MockStore) Head(ctx context.Context, key string) (ObjectMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.FailHead != nil {
		return ObjectMeta{}, &ObjectError{Op: "Head", Key: key, Err: s.FailHead}
	}
	obj, ok := s.objects[key]
	if !ok {
		return ObjectMeta{}, &ObjectError{Op: "Head", Key: key, Err: ErrNotFound}
	}
	return ObjectMeta{
		Key:         key,
		Size:        int64(len(obj.data)),
		ContentType: obj.contentType,
		ETag:        "mock-etag",
	}, nil
}

func (s *MockStore) Close() error { return nil }

// Len returns the number of stored objects.
func (s *MockStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// Puts returns how many successful Put calls the store has seen.
func (s *MockStore) Puts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.puts
}
