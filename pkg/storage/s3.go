package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Store uploads artifacts under prefix/org_id/filename and resolves
// downloads to time-limited pre-signed URLs.
type S3Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	prefix  string
}

// NewS3Store creates an S3-backed store. A custom endpoint enables
// MinIO/LocalStack deployments.
func NewS3Store(ctx context.Context, cfg Config) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.S3Region))
	if err != nil {
		return nil, fmt.Errorf("storage: load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true // Required for MinIO/LocalStack
		}
	})

	return &S3Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.S3Bucket,
		prefix:  cfg.S3Prefix,
	}, nil
}

func (s *S3Store) key(storedPath string) string {
	return s.prefix + storedPath
}

// Put uploads the artifact and returns its org-scoped stored path.
func (s *S3Store) Put(ctx context.Context, orgID, filename string, data []byte) (string, error) {
	storedPath := orgID + "/" + filename
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(storedPath)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentTypeFor(filename)),
	})
	if err != nil {
		return "", fmt.Errorf("storage: s3 put %s: %w", storedPath, err)
	}
	return storedPath, nil
}

// DownloadURL returns a pre-signed GET URL valid for ttl.
func (s *S3Store) DownloadURL(ctx context.Context, storedPath string, ttl time.Duration) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(storedPath)),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("storage: s3 presign %s: %w", storedPath, err)
	}
	return req.URL, nil
}

func contentTypeFor(filename string) string {
	switch {
	case strings.HasSuffix(filename, ".csv"):
		return "text/csv"
	case strings.HasSuffix(filename, ".json"):
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
