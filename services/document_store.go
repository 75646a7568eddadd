package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

// ErrBlobNotFound is returned by a DocumentStore for an unknown key
var ErrBlobNotFound = errors.New("document blob not found")

// LocalDocumentStore keeps documents under a directory on disk
type LocalDocumentStore struct {
	dir string
}

// NewLocalDocumentStore creates the directory if needed
func NewLocalDocumentStore(dir string) (*LocalDocumentStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalDocumentStore{dir: dir}, nil
}

func (s *LocalDocumentStore) path(key string) (string, error) {
	p := filepath.Join(s.dir, filepath.FromSlash(key))
	if !strings.HasPrefix(p, filepath.Clean(s.dir)+string(os.PathSeparator)) {
		return "", fmt.Errorf("invalid document key %q", key)
	}
	return p, nil
}

func (s *LocalDocumentStore) Put(ctx context.Context, key, contentType string, data []byte) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return fmt.Errorf("create document dir: %w", err)
	}
	return os.WriteFile(p, data, 0o640)
}

func (s *LocalDocumentStore) Get(ctx context.Context, key string) ([]byte, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrBlobNotFound
	}
	return data, err
}

func (s *LocalDocumentStore) Delete(ctx context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// GCSDocumentStore keeps documents in a Cloud Storage bucket
type GCSDocumentStore struct {
	client  *storage.Client
	bucket  string
	timeout time.Duration
}

// NewGCSDocumentStore connects with application default credentials
func NewGCSDocumentStore(ctx context.Context, bucket string, timeout time.Duration) (*GCSDocumentStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCSDocumentStore{client: client, bucket: bucket, timeout: timeout}, nil
}

func (s *GCSDocumentStore) Put(ctx context.Context, key, contentType string, data []byte) error {
	return callCollaborator(ctx, "gcs", s.timeout, func(ctx context.Context) error {
		w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
		w.ContentType = contentType
		if _, err := w.Write(data); err != nil {
			_ = w.Close()
			return fmt.Errorf("write object %s: %w", key, err)
		}
		return w.Close()
	})
}

func (s *GCSDocumentStore) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (s *GCSDocumentStore) Delete(ctx context.Context, key string) error {
	err := s.client.Bucket(s.bucket).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

// Close releases the storage client
func (s *GCSDocumentStore) Close() error {
	return s.client.Close()
}
