package blob

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// GCSStore writes blobs to a Cloud Storage bucket under the same date-based
// layout as LocalStore. Locations are public object URLs.
type GCSStore struct {
	client *storage.Client
	bucket string
	now    func() time.Time
}

// NewGCSStore creates a GCSStore for the given bucket using ambient
// credentials.
func NewGCSStore(ctx context.Context, bucket string) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket, now: time.Now}, nil
}

// Close releases the underlying client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

func (s *GCSStore) Put(ctx context.Context, name string, data []byte) (string, error) {
	key := s.now().Format("2006/01/02") + "/" + name
	obj := s.client.Bucket(s.bucket).Object(key)
	location := fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucket, key)

	// DoesNotExist keeps the write idempotent: the first writer wins.
	w := obj.If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write object %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		if isPreconditionFailed(err) {
			return location, nil
		}
		return "", fmt.Errorf("close object %s: %w", key, err)
	}
	return location, nil
}

func isPreconditionFailed(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusPreconditionFailed
	}
	return false
}
