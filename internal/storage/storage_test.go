package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/loqalabs/loqa-mic/internal/config"
)

func TestLocalPutGetOverwrite(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("new local: %v", err)
	}
	ctx := context.Background()
	if err := store.Put(ctx, "output.json", []byte("first record"), "application/json"); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Put(ctx, "output.json", []byte("second"), "application/json"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, err := store.Get(ctx, "output.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "second" {
		t.Fatalf("expected overwritten record, got %q", got)
	}
	entries, err := os.ReadDir(store.Root())
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the record on disk, found %d entries", len(entries))
	}
}

func TestLocalStaysInsideRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "records")
	store, err := NewLocal(root)
	if err != nil {
		t.Fatalf("new local: %v", err)
	}
	if err := store.Put(context.Background(), "../escape.json", []byte("{}"), ""); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "escape.json")); err != nil {
		t.Fatalf("expected record inside root: %v", err)
	}
}

func TestLocalMissingAndDelete(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("new local: %v", err)
	}
	ctx := context.Background()
	if _, err := store.Get(ctx, "nope"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist, got %v", err)
	}
	if err := store.Delete(ctx, "nope"); err != nil {
		t.Fatalf("delete missing: %v", err)
	}
	if err := store.Put(ctx, "a/b.json", []byte("x"), ""); err != nil {
		t.Fatalf("put nested: %v", err)
	}
	ok, err := store.Exists(ctx, "a/b.json")
	if err != nil || !ok {
		t.Fatalf("expected nested record to exist: %v", err)
	}
	if err := store.Delete(ctx, "a/b.json"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	ok, _ = store.Exists(ctx, "a/b.json")
	if ok {
		t.Fatalf("record should be gone")
	}
}

type notFoundError struct{ code string }

func (e *notFoundError) Error() string                 { return e.code }
func (e *notFoundError) ErrorCode() string             { return e.code }
func (e *notFoundError) ErrorMessage() string          { return e.code }
func (e *notFoundError) ErrorFault() smithy.ErrorFault { return smithy.FaultClient }

type memS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newMemS3() *memS3 {
	return &memS3{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[*in.Key]
	if !ok {
		return nil, &notFoundError{code: "NoSuchKey"}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (m *memS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[*in.Key] = data
	if in.ContentType != nil {
		m.types[*in.Key] = *in.ContentType
	}
	return &s3.PutObjectOutput{}, nil
}

func (m *memS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (m *memS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[*in.Key]; !ok {
		return nil, &notFoundError{code: "NotFound"}
	}
	return &s3.HeadObjectOutput{}, nil
}

func TestS3StorePrefixesKeys(t *testing.T) {
	mem := newMemS3()
	store := NewS3(mem, "bucket", "/analyses/")
	ctx := context.Background()

	if err := store.Put(ctx, "output.json", []byte(`{"a":1}`), "application/json"); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, ok := mem.objects["analyses/output.json"]; !ok {
		t.Fatalf("expected prefixed key, have %v", mem.objects)
	}
	if mem.types["analyses/output.json"] != "application/json" {
		t.Fatalf("content type not forwarded")
	}
	got, err := store.Get(ctx, "output.json")
	if err != nil || string(got) != `{"a":1}` {
		t.Fatalf("get: %q %v", got, err)
	}
	ok, err := store.Exists(ctx, "output.json")
	if err != nil || !ok {
		t.Fatalf("exists: %v %v", ok, err)
	}
}

func TestS3StoreNotFound(t *testing.T) {
	store := NewS3(newMemS3(), "bucket", "")
	ctx := context.Background()
	if _, err := store.Get(ctx, "missing"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist, got %v", err)
	}
	ok, err := store.Exists(ctx, "missing")
	if err != nil || ok {
		t.Fatalf("expected missing object, got %v %v", ok, err)
	}
}

func TestOpenSelectsBackend(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(context.Background(), config.StorageConfig{Backend: "local", Directory: dir})
	if err != nil {
		t.Fatalf("open local: %v", err)
	}
	if _, ok := store.(*Local); !ok {
		t.Fatalf("expected local store, got %T", store)
	}
	if _, err := Open(context.Background(), config.StorageConfig{Backend: "s3"}); err == nil {
		t.Fatalf("expected error for s3 without bucket")
	}
	s3store, err := Open(context.Background(), config.StorageConfig{Backend: "s3", Bucket: "b", Endpoint: "http://127.0.0.1:9000", UsePathStyle: true})
	if err != nil {
		t.Fatalf("open s3: %v", err)
	}
	if _, ok := s3store.(*S3Store); !ok {
		t.Fatalf("expected s3 store, got %T", s3store)
	}
	if _, err := Open(context.Background(), config.StorageConfig{Backend: "ftp"}); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}
