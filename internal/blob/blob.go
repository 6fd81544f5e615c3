// Package blob provides the key/value document store that backs every
// Neyasbook project. Keys are slash-separated paths such as
// "projects/neyas/manifest.json"; values are opaque bytes (JSON in practice).
package blob

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by Read when the key does not exist.
var ErrNotFound = errors.New("not found")

// Store is the minimal storage contract the rest of the application needs.
type Store interface {
	// Read returns the value stored at key, or ErrNotFound.
	Read(ctx context.Context, key string) ([]byte, error)

	// Write stores data at key, replacing any previous value.
	Write(ctx context.Context, key string, data []byte) error

	// Exists reports whether a value is stored at key.
	Exists(ctx context.Context, key string) (bool, error)

	// List returns all keys with the given prefix in ascending order.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// DeletePrefix removes every key with the given prefix.
	DeletePrefix(ctx context.Context, prefix string) error

	// Close releases backend resources.
	Close() error
}

// Pinger is implemented by backends that talk to a remote service or
// database and can check that it is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping checks store when it implements Pinger. Other stores always pass.
func Ping(ctx context.Context, store Store) error {
	if p, ok := store.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Options selects and configures a backend.
type Options struct {
	Backend string // "fs", "s3", "sqlite" or "redis"
	DataDir string

	S3Endpoint  string
	S3Bucket    string
	S3Region    string
	S3AccessKey string
	S3SecretKey string
	S3UseSSL    bool

	RedisURL string
}

// Open constructs the backend named by opts.Backend.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch strings.ToLower(opts.Backend) {
	case "", "fs":
		return NewFileStore(opts.DataDir)
	case "s3":
		return NewS3Store(ctx, S3Options{
			Endpoint:  opts.S3Endpoint,
			Bucket:    opts.S3Bucket,
			Region:    opts.S3Region,
			AccessKey: opts.S3AccessKey,
			SecretKey: opts.S3SecretKey,
			UseSSL:    opts.S3UseSSL,
		})
	case "sqlite":
		return OpenSQLite(opts.DataDir)
	case "redis":
		return NewRedisStore(ctx, opts.RedisURL)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}

// validKey rejects keys that could escape a backend's namespace.
func validKey(key string) error {
	if key == "" {
		return errors.New("empty key")
	}
	if strings.HasPrefix(key, "/") {
		return fmt.Errorf("key %q must be relative", key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." || part == "." {
			return fmt.Errorf("key %q contains a relative path segment", key)
		}
	}
	return nil
}
