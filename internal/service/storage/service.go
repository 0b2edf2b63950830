package storage

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"threadcast-backend/pkg/config"
	apperrors "threadcast-backend/pkg/errors"
	"threadcast-backend/pkg/resilience"
	"threadcast-backend/pkg/sanitize"
)

// MaxUploadSize caps a single media upload
const MaxUploadSize = 100 << 20

const (
	breakerThreshold = 3
	breakerCooldown  = 30 * time.Second
)

// ObjectStorage is the subset of the MinIO client used here
type ObjectStorage interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PresignedPutObject(ctx context.Context, bucketName, objectName string, expires time.Duration) (*url.URL, error)
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
}

// Service issues presigned URLs for message media
type Service struct {
	storage ObjectStorage
	breaker *resilience.CircuitBreaker
	bucket  string
	expiry  time.Duration
	now     func() time.Time
}

// NewService connects to MinIO and makes sure the media bucket exists
func NewService(ctx context.Context, cfg *config.MinIOConfig) (*Service, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}
	return newService(ctx, client, cfg.Bucket, cfg.URLExpiry)
}

func newService(ctx context.Context, storage ObjectStorage, bucket string, expiry time.Duration) (*Service, error) {
	exists, err := storage.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := storage.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}

	return &Service{
		storage: storage,
		breaker: resilience.NewCircuitBreaker("minio", breakerThreshold, breakerCooldown),
		bucket:  bucket,
		expiry:  expiry,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// GenerateUploadURLInput contains file upload request
type GenerateUploadURLInput struct {
	FileName    string
	FileSize    int64
	ContentType string
}

// GenerateUploadURLOutput contains presigned upload URL
type GenerateUploadURLOutput struct {
	ObjectKey string    `json:"object_key"`
	UploadURL string    `json:"upload_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// GenerateUploadURL creates a presigned PUT for a new media object. The
// returned object key is what a MEDIA or VOICE_MESSAGE payload references.
func (s *Service) GenerateUploadURL(ctx context.Context, userID uuid.UUID, input *GenerateUploadURLInput) (*GenerateUploadURLOutput, error) {
	if input.ContentType == "" {
		return nil, apperrors.MissingFieldError("content_type")
	}
	if input.FileSize <= 0 || input.FileSize > MaxUploadSize {
		return nil, apperrors.ValidationError(fmt.Sprintf("File size must be between 1 and %d bytes", MaxUploadSize))
	}

	ext := strings.ToLower(path.Ext(sanitize.PlainText(input.FileName)))
	objectKey := fmt.Sprintf("users/%s/%s%s", userID, uuid.New(), ext)

	var presigned *url.URL
	err := s.breaker.Execute(ctx, "presign_put", func(ctx context.Context) error {
		var err error
		presigned, err = s.storage.PresignedPutObject(ctx, s.bucket, objectKey, s.expiry)
		return err
	})
	if err != nil {
		return nil, apperrors.StorageError(err)
	}

	return &GenerateUploadURLOutput{
		ObjectKey: objectKey,
		UploadURL: presigned.String(),
		ExpiresAt: s.now().Add(s.expiry),
	}, nil
}

// PresignGet returns a time-limited download URL for an object key
func (s *Service) PresignGet(ctx context.Context, objectKey string) (string, error) {
	var presigned *url.URL
	err := s.breaker.Execute(ctx, "presign_get", func(ctx context.Context) error {
		var err error
		presigned, err = s.storage.PresignedGetObject(ctx, s.bucket, objectKey, s.expiry, nil)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", objectKey, err)
	}
	return presigned.String(), nil
}
