// Package backup exports consistent snapshots of registered model tables to
// an object store and restores them into a database.
package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// ErrObjectNotFound is returned when a stored object does not exist
var ErrObjectNotFound = errors.New("object not found")

// ObjectStore is the storage surface snapshots are written to and read from.
// Object names use forward slashes regardless of backend.
type ObjectStore interface {
	Put(ctx context.Context, name, contentType string, data io.Reader) (int64, error)
	Get(ctx context.Context, name string) (io.ReadCloser, error)
	Delete(ctx context.Context, name string) error
	List(ctx context.Context, prefix string) ([]string, error)
}

// StoreConfig selects and configures an object store backend
type StoreConfig struct {
	// Mode selects the backend, "local" or "gcs"
	Mode string
	// LocalBasePath roots the local store
	LocalBasePath string
	// Bucket names the GCS bucket for the gcs backend
	Bucket string
	// Prefix is prepended to every object name in the bucket
	Prefix string
}

// NewStore creates an object store based on configuration.
// For local mode, objects are stored on the local filesystem.
// For gcs mode, objects are stored in a Google Cloud Storage bucket.
func NewStore(ctx context.Context, cfg StoreConfig, log *zap.Logger, opts ...option.ClientOption) (ObjectStore, error) {
	switch cfg.Mode {
	case "local", "":
		return NewLocalStore(cfg.LocalBasePath)
	case "gcs":
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("bucket required for gcs storage")
		}
		return NewGCSStore(ctx, cfg.Bucket, cfg.Prefix, log, opts...)
	default:
		return nil, fmt.Errorf("unsupported storage mode: %s", cfg.Mode)
	}
}

// LocalStore keeps objects as files under a base directory
type LocalStore struct {
	base string
}

// NewLocalStore creates a local store rooted at basePath
func NewLocalStore(basePath string) (*LocalStore, error) {
	if basePath == "" {
		basePath = "./snapshots"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalStore{base: basePath}, nil
}

func (s *LocalStore) path(name string) (string, error) {
	p := filepath.Join(s.base, filepath.FromSlash(name))
	if p == filepath.Clean(s.base) || !strings.HasPrefix(p, filepath.Clean(s.base)+string(os.PathSeparator)) {
		return "", fmt.Errorf("invalid object name: %s", name)
	}
	return p, nil
}

// Put writes an object, creating parent directories as needed
func (s *LocalStore) Put(ctx context.Context, name, contentType string, data io.Reader) (int64, error) {
	p, err := s.path(name)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create directory for %s: %w", name, err)
	}
	f, err := os.Create(p)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", name, err)
	}
	n, err := io.Copy(f, data)
	if err != nil {
		f.Close()
		return 0, fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("failed to write %s: %w", name, err)
	}
	return n, nil
}

// Get opens an object for reading
func (s *LocalStore) Get(ctx context.Context, name string) (io.ReadCloser, error) {
	p, err := s.path(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", name, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	return f, nil
}

// Delete removes an object. Deleting a missing object is not an error.
func (s *LocalStore) Delete(ctx context.Context, name string) error {
	p, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", name, err)
	}
	return nil
}

// List returns the object names under prefix, sorted
func (s *LocalStore) List(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(s.base, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.base, p)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if strings.HasPrefix(name, prefix) {
			out = append(out, name)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}
	sort.Strings(out)
	return out, nil
}
