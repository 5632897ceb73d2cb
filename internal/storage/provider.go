// Package storage defines the byte-level key-value contract shared by the
// tracking slot backends (memory, local filesystem, Redis, Postgres, GCS).
// Backends know nothing about descriptors; encoding and expiry live in the
// tracking package.
package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// ErrNotFound signals that no value is stored under the key.
var ErrNotFound = errors.New("storage: key not found")

// KV is a durable key-value store with overwrite semantics.
type KV interface {
	// Get returns the stored value or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set writes value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error
	// Delete erases key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

var validKey = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:-]{0,199}$`)

// ValidateKey rejects keys that are unsafe as file names, object names or
// Redis keys.
func ValidateKey(key string) error {
	if !validKey.MatchString(key) {
		return fmt.Errorf("storage: invalid key %q", key)
	}
	return nil
}
