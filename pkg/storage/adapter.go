// Package storage persists export artifacts to local disk or object
// storage and issues retrieval URLs. The backend is a deployment-wide
// switch, not a per-job choice.
package storage

import (
	"context"
	"time"

	"github.com/Arclight-Systems/casetrail/pkg/fault"
)

// Backend identifies a storage backend.
type Backend string

const (
	BackendFS  Backend = "fs"
	BackendS3  Backend = "s3"
	BackendGCS Backend = "gcs"
)

// Adapter persists export artifacts and resolves them to download URLs.
type Adapter interface {
	// Put stores data under org-scoped key org_id/filename and returns the
	// stored path recorded on the job.
	Put(ctx context.Context, orgID, filename string, data []byte) (string, error)
	// DownloadURL returns a retrieval URL for a stored path: a signed
	// token URL for the local backend, a time-limited pre-signed URL for
	// object storage.
	DownloadURL(ctx context.Context, storedPath string, ttl time.Duration) (string, error)
}

// Config selects and parameterizes the backend.
type Config struct {
	Backend Backend `yaml:"backend"`

	// Local disk backend.
	LocalRoot       string `yaml:"local_root"`
	LocalBaseURL    string `yaml:"local_base_url"`
	LocalSigningKey string `yaml:"local_signing_key"`

	// S3 backend.
	S3Bucket   string `yaml:"s3_bucket"`
	S3Region   string `yaml:"s3_region"`
	S3Endpoint string `yaml:"s3_endpoint"`
	S3Prefix   string `yaml:"s3_prefix"`

	// GCS backend.
	GCSBucket string `yaml:"gcs_bucket"`
	GCSPrefix string `yaml:"gcs_prefix"`
}

// New creates the configured backend. Missing configuration is a
// configuration fault, which export processing surfaces as a job failure.
func New(ctx context.Context, cfg Config) (Adapter, error) {
	switch cfg.Backend {
	case BackendFS, "":
		if cfg.LocalRoot == "" {
			return nil, fault.New(fault.CodeConfiguration, "local storage requires a root directory")
		}
		return NewLocalStore(cfg.LocalRoot, cfg.LocalBaseURL, []byte(cfg.LocalSigningKey))
	case BackendS3:
		if cfg.S3Bucket == "" {
			return nil, fault.New(fault.CodeConfiguration, "s3 storage requires a bucket")
		}
		return NewS3Store(ctx, cfg)
	case BackendGCS:
		if cfg.GCSBucket == "" {
			return nil, fault.New(fault.CodeConfiguration, "gcs storage requires a bucket")
		}
		return NewGCSStore(ctx, cfg)
	default:
		return nil, fault.New(fault.CodeConfiguration, "unsupported storage backend %q", cfg.Backend)
	}
}
