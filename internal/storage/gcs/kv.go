// Package gcs provides a KV backed by Google Cloud Storage. Each key is one
// object under an optional prefix.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"

	kvstore "github.com/JakeFAU/curation-tracker/internal/storage"
)

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string
	Prefix string
}

// KV reads and writes objects in a configured GCS bucket.
type KV struct {
	client *storage.Client
	bucket string
	prefix string
}

// New creates a GCS-backed KV.
func New(client *storage.Client, cfg Config) (*KV, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &KV{
		client: client,
		bucket: cfg.Bucket,
		prefix: prefix,
	}, nil
}

// Get downloads the object stored for key.
func (s *KV) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.object(key)
	if err != nil {
		return nil, err
	}
	reader, err := obj.NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, kvstore.ErrNotFound
		}
		return nil, fmt.Errorf("open object %s: %w", key, err)
	}
	defer func() { _ = reader.Close() }()
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return data, nil
}

// Set uploads value as the object for key.
func (s *KV) Set(ctx context.Context, key string, value []byte) error {
	obj, err := s.object(key)
	if err != nil {
		return err
	}
	writer := obj.NewWriter(ctx)
	writer.ContentType = "application/json"
	if _, err := writer.Write(value); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return fmt.Errorf("write object %s: %w (close writer: %v)", key, err, closeErr)
		}
		return fmt.Errorf("write object %s: %w", key, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}

// Delete removes the object for key. A missing object is not an error.
func (s *KV) Delete(ctx context.Context, key string) error {
	obj, err := s.object(key)
	if err != nil {
		return err
	}
	if err := obj.Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

func (s *KV) object(key string) (*storage.ObjectHandle, error) {
	if err := kvstore.ValidateKey(key); err != nil {
		return nil, err
	}
	return s.client.Bucket(s.bucket).Object(s.prefix + key), nil
}
