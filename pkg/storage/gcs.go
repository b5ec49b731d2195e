package storage

import (
	"context"
	"fmt"
	"time"

	gcs "cloud.google.com/go/storage"
)

// GCSStore uploads artifacts under prefix/org_id/filename and resolves
// downloads to V4 signed URLs. Credentials come from ADC.
type GCSStore struct {
	client *gcs.Client
	bucket string
	prefix string
}

// NewGCSStore creates a GCS-backed store.
func NewGCSStore(ctx context.Context, cfg Config) (*GCSStore, error) {
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage: create GCS client: %w", err)
	}
	return &GCSStore{client: client, bucket: cfg.GCSBucket, prefix: cfg.GCSPrefix}, nil
}

func (s *GCSStore) object(storedPath string) string {
	return s.prefix + storedPath
}

// Put uploads the artifact and returns its org-scoped stored path.
func (s *GCSStore) Put(ctx context.Context, orgID, filename string, data []byte) (string, error) {
	storedPath := orgID + "/" + filename
	w := s.client.Bucket(s.bucket).Object(s.object(storedPath)).NewWriter(ctx)
	w.ContentType = contentTypeFor(filename)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("storage: gcs write %s: %w", storedPath, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("storage: gcs commit %s: %w", storedPath, err)
	}
	return storedPath, nil
}

// DownloadURL returns a V4 signed GET URL valid for ttl.
func (s *GCSStore) DownloadURL(ctx context.Context, storedPath string, ttl time.Duration) (string, error) {
	url, err := s.client.Bucket(s.bucket).SignedURL(s.object(storedPath), &gcs.SignedURLOptions{
		Method:  "GET",
		Expires: time.Now().Add(ttl),
		Scheme:  gcs.SigningSchemeV4,
	})
	if err != nil {
		return "", fmt.Errorf("storage: gcs sign %s: %w", storedPath, err)
	}
	return url, nil
}

// Close releases the underlying client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
