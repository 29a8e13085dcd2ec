package objectstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
)

func TestObjectErrorFormat(t *testing.T) {
	tests := []struct {
		name     string
		err      *ObjectError
		expected string
	}{
		{
			name: "get not found",
			err: &ObjectError{
				Op:  "Get",
				Key: "vehicle_records/2025/06.parquet",
				Err: ErrNotFound,
			},
			expected: `objectstore: Get "vehicle_records/2025/06.parquet": object not found`,
		},
		{
			name: "put failure",
			err: &ObjectError{
				Op:  "Put",
				Key: "vehicle_records/2025/07.parquet",
				Err: errors.New("connection reset"),
			},
			expected: `objectstore: Put "vehicle_records/2025/07.parquet": connection reset`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("ObjectError.Error() = %q, want %q", got, tt.expected)
			}
			if !errors.Is(tt.err, tt.err.Err) {
				t.Errorf("ObjectError should unwrap to its inner error")
			}
		})
	}
}

func TestMockStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMockStore()

	data := []byte("parquet bytes")
	if err := s.Put(ctx, "k1", bytes.NewReader(data), int64(len(data)), "application/vnd.apache.parquet"); err != nil {
		t.Fatalf("Put: %v", err)
	}

	rc, err := s.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	got, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("Get = %q, want %q", got, data)
	}

	meta, err := s.Head(ctx, "k1")
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if meta.Size != int64(len(data)) {
		t.Errorf("Head size = %d, want %d", meta.Size, len(data))
	}
	if meta.ContentType != "application/vnd.apache.parquet" {
		t.Errorf("Head content type = %q", meta.ContentType)
	}
}

func TestMockStoreOverwrite(t *testing.T) {
	ctx := context.Background()
	s := NewMockStore()

	first := []byte("first attempt")
	second := []byte("second, longer attempt")
	for _, data := range [][]byte{first, second} {
		if err := s.Put(ctx, "k", bytes.NewReader(data), int64(len(data)), "text/plain"); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	if s.Len() != 1 {
		t.Fatalf("Len = %d, want 1 (same key overwrites)", s.Len())
	}
	meta, err := s.Head(ctx, "k")
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if meta.Size != int64(len(second)) {
		t.Errorf("size = %d, want %d", meta.Size, len(second))
	}
}

func TestMockStoreNotFound(t *testing.T) {
	ctx := context.Background()
	s := NewMockStore()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get missing = %v, want ErrNotFound", err)
	}
	if _, err := s.Head(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Head missing = %v, want ErrNotFound", err)
	}
}

func TestMockStoreSizeMismatch(t *testing.T) {
	ctx := context.Background()
	s := NewMockStore()

	data := []byte("abc")
	if err := s.Put(ctx, "k", bytes.NewReader(data), 99, "text/plain"); err == nil {
		t.Error("Put with wrong declared size should fail")
	}
}
