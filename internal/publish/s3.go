// Package publish uploads generated archives to S3-compatible storage and
// hands back a time-limited download URL.
package publish

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"
)

// Publisher makes a local archive available elsewhere.
type Publisher interface {
	Publish(ctx context.Context, archivePath string) (string, error)
}

type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
	// URLExpiry bounds the presigned download URL; 0 means one hour.
	URLExpiry time.Duration
}

// S3Publisher uploads archives with minio-go.
type S3Publisher struct {
	client *minio.Client
	bucket string
	region string
	prefix string
	expiry time.Duration
	log    logrus.FieldLogger

	// mu guards ready; only a successful bucket check is remembered.
	mu    sync.Mutex
	ready bool
}

func NewS3Publisher(cfg S3Config, log logrus.FieldLogger) (*S3Publisher, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errors.New("publish: s3 endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, errors.New("publish: s3 access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, errors.New("publish: s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}
	expiry := cfg.URLExpiry
	if expiry <= 0 {
		expiry = time.Hour
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("publish: init s3 client: %w", err)
	}
	return &S3Publisher{
		client: client,
		bucket: bucket,
		region: region,
		prefix: strings.Trim(strings.TrimSpace(cfg.Prefix), "/"),
		expiry: expiry,
		log:    log,
	}, nil
}

func (s *S3Publisher) ensureBucket(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return err
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return err
		}
		s.log.WithField("bucket", s.bucket).Info("bucket created")
	}
	s.ready = true
	return nil
}

// Publish uploads archivePath and returns a presigned GET URL for it.
func (s *S3Publisher) Publish(ctx context.Context, archivePath string) (string, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return "", fmt.Errorf("publish: ensure bucket: %w", err)
	}
	key := ObjectKey(s.prefix, archivePath)
	info, err := s.client.FPutObject(ctx, s.bucket, key, archivePath, minio.PutObjectOptions{
		ContentType: "application/zip",
	})
	if err != nil {
		return "", fmt.Errorf("publish: upload %s: %w", key, err)
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.expiry, nil)
	if err != nil {
		return "", fmt.Errorf("publish: presign %s: %w", key, err)
	}
	s.log.WithFields(logrus.Fields{"bucket": s.bucket, "key": key, "size": info.Size}).Info("archive uploaded")
	return u.String(), nil
}

// ObjectKey is "<prefix>/<file name>", or just the file name without prefix.
func ObjectKey(prefix, archivePath string) string {
	name := filepath.Base(archivePath)
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}
