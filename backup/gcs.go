package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSStore keeps objects in a Google Cloud Storage bucket
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
	log    *zap.Logger
}

// NewGCSStore creates a store writing into bucket under prefix
func NewGCSStore(ctx context.Context, bucket, prefix string, log *zap.Logger, opts ...option.ClientOption) (*GCSStore, error) {
	if log == nil {
		log = zap.NewNop()
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &GCSStore{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		log:    log,
	}, nil
}

func (s *GCSStore) object(name string) string {
	if s.prefix == "" {
		return name
	}
	return s.prefix + "/" + name
}

// Put uploads an object and returns the number of bytes written.
// The upload is not durable until the writer closes without error.
func (s *GCSStore) Put(ctx context.Context, name, contentType string, data io.Reader) (int64, error) {
	w := s.client.Bucket(s.bucket).Object(s.object(name)).NewWriter(ctx)
	w.ContentType = contentType
	n, err := io.Copy(w, data)
	if err != nil {
		w.Close()
		return 0, fmt.Errorf("failed to upload %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return 0, fmt.Errorf("failed to upload %s: %w", name, err)
	}
	s.log.Debug("uploaded object",
		zap.String("bucket", s.bucket),
		zap.String("object", s.object(name)),
		zap.Int64("bytes", n))
	return n, nil
}

// Get opens an object for reading
func (s *GCSStore) Get(ctx context.Context, name string) (io.ReadCloser, error) {
	r, err := s.client.Bucket(s.bucket).Object(s.object(name)).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%s: %w", name, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	return r, nil
}

// Delete removes an object. Deleting a missing object is not an error.
func (s *GCSStore) Delete(ctx context.Context, name string) error {
	err := s.client.Bucket(s.bucket).Object(s.object(name)).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete %s: %w", name, err)
	}
	return nil
}

// List returns object names under prefix, relative to the store prefix
func (s *GCSStore) List(ctx context.Context, prefix string) ([]string, error) {
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: s.object(prefix)})
	var out []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list objects under %s: %w", prefix, err)
		}
		name := attrs.Name
		if s.prefix != "" {
			name = strings.TrimPrefix(name, s.prefix+"/")
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// Close releases the underlying storage client
func (s *GCSStore) Close() error {
	return s.client.Close()
}
