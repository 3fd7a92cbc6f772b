package testsupport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/andresuchdata/hydra-workflows/internal/domain"
	"github.com/andresuchdata/hydra-workflows/internal/storage"
)

// MemoryStore is an in-memory storage.ObjectStorage.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]map[string][]byte
	types   map[string]string

	// FailUpload, when set, is consulted before every write.
	FailUpload func(bucket, key string) error
	// FailGet, when set, is consulted before every read.
	FailGet func(bucket, key string) error
}

// NewMemoryStore returns a store with the given buckets created.
func NewMemoryStore(buckets ...string) *MemoryStore {
	s := &MemoryStore{
		buckets: map[string]map[string][]byte{},
		types:   map[string]string{},
	}
	for _, b := range buckets {
		s.buckets[b] = map[string][]byte{}
	}
	return s
}

// Add stores data under bucket/key, creating the bucket if needed.
func (s *MemoryStore) Add(bucket, key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buckets[bucket] == nil {
		s.buckets[bucket] = map[string][]byte{}
	}
	s.buckets[bucket][key] = append([]byte(nil), data...)
}

// Object returns a copy of the stored bytes.
func (s *MemoryStore) Object(bucket, key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.buckets[bucket][key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}

// ContentType returns the content type recorded at upload.
func (s *MemoryStore) ContentType(bucket, key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.types[bucket+"/"+key]
}

// Keys lists bucket keys in lexical order.
func (s *MemoryStore) Keys(bucket string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.buckets[bucket]))
	for k := range s.buckets[bucket] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *MemoryStore) BucketExists(_ context.Context, bucket string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.buckets[bucket]
	return ok, nil
}

func (s *MemoryStore) EnsureBucket(_ context.Context, bucket string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buckets[bucket] == nil {
		s.buckets[bucket] = map[string][]byte{}
	}
	return nil
}

func (s *MemoryStore) ListObjects(_ context.Context, bucket, prefix string, recursive bool) ([]storage.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	objects, ok := s.buckets[bucket]
	if !ok {
		return nil, fmt.Errorf("bucket %q: %w", bucket, domain.ErrNotFound)
	}
	prefix = strings.TrimPrefix(prefix, "/")
	var out []storage.ObjectInfo
	for key, data := range objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if !recursive && strings.Contains(strings.TrimPrefix(key, prefix), "/") {
			continue
		}
		out = append(out, storage.ObjectInfo{
			Bucket:       bucket,
			Key:          key,
			Size:         int64(len(data)),
			LastModified: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *MemoryStore) GetObject(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	if s.FailGet != nil {
		if err := s.FailGet(bucket, key); err != nil {
			return nil, err
		}
	}
	data, ok := s.Object(bucket, key)
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", bucket, key, domain.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *MemoryStore) DownloadObject(ctx context.Context, bucket, key, destPath string) error {
	rc, err := s.GetObject(ctx, bucket, key)
	if err != nil {
		return err
	}
	defer rc.Close()
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return err
	}
	data, err := io.ReadAll(rc)
	if err != nil {
		return err
	}
	return os.WriteFile(destPath, data, 0o644)
}

func (s *MemoryStore) PutObject(_ context.Context, bucket, key string, r io.Reader, _ int64, contentType string) error {
	if s.FailUpload != nil {
		if err := s.FailUpload(bucket, key); err != nil {
			return err
		}
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.Add(bucket, key, data)
	s.mu.Lock()
	s.types[bucket+"/"+key] = contentType
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) UploadFile(ctx context.Context, bucket, key, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()
	return s.PutObject(ctx, bucket, key, f, -1, storage.DetectContentType(localPath))
}

var _ storage.ObjectStorage = (*MemoryStore)(nil)
