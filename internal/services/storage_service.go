// internal/services/storage_service.go
package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/sirupsen/logrus"

	"github.com/ratedarts/fulfillment/internal/config"
)

// ObjectStorage stores derived and uploaded images by key.
type ObjectStorage interface {
	Put(ctx context.Context, key string, body []byte, contentType string) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	PublicURL(key string) string
}

type StorageService struct {
	s3Client   *s3.S3
	uploader   *s3manager.Uploader
	bucket     string
	region     string
	publicBase string
	timeout    time.Duration
	maxRetries int
	log        logrus.FieldLogger
}

// StorageOption customizes the service, mostly for tests.
type StorageOption func(*aws.Config)

// WithEndpoint points the client at an S3 compatible endpoint.
func WithEndpoint(endpoint string) StorageOption {
	return func(c *aws.Config) {
		c.Endpoint = aws.String(endpoint)
		c.S3ForcePathStyle = aws.Bool(true)
		c.DisableSSL = aws.Bool(strings.HasPrefix(endpoint, "http://"))
	}
}

func NewStorageService(cfg config.AWSConfig, log logrus.FieldLogger, opts ...StorageOption) (*StorageService, error) {
	awsConfig := &aws.Config{
		Region: aws.String(cfg.Region),
	}
	// Without static keys the default credential chain is used
	if cfg.AccessKeyID != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)
	}
	for _, opt := range opts {
		opt(awsConfig)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	client := s3.New(sess)
	return &StorageService{
		s3Client:   client,
		uploader:   s3manager.NewUploaderWithClient(client),
		bucket:     cfg.S3Bucket,
		region:     cfg.Region,
		publicBase: strings.TrimRight(cfg.PublicBaseURL, "/"),
		timeout:    time.Duration(cfg.TimeoutSeconds) * time.Second,
		maxRetries: cfg.MaxRetries,
		log:        log.WithField("component", "storage"),
	}, nil
}

// EncodeKey replaces spaces with '+', which is how every key is stored.
func EncodeKey(key string) string {
	return strings.ReplaceAll(key, " ", "+")
}

func (s *StorageService) Put(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	key = EncodeKey(key)

	err := retryCall(ctx, s.maxRetries, s.log, "put "+key, true, func(ctx context.Context) error {
		callCtx, cancel := s.callContext(ctx)
		defer cancel()

		_, err := s.uploader.UploadWithContext(callCtx, &s3manager.UploadInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(body),
			ContentType: aws.String(contentType),
		})
		if err != nil {
			return &StorageError{Op: "put", Key: key, Err: err}
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	return s.PublicURL(key), nil
}

func (s *StorageService) Get(ctx context.Context, key string) ([]byte, error) {
	key = EncodeKey(key)

	var data []byte
	err := retryCall(ctx, s.maxRetries, s.log, "get "+key, true, func(ctx context.Context) error {
		callCtx, cancel := s.callContext(ctx)
		defer cancel()

		out, err := s.s3Client.GetObjectWithContext(callCtx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return &StorageError{Op: "get", Key: key, Err: err, Missing: isMissingObject(err)}
		}
		defer out.Body.Close()

		data, err = io.ReadAll(out.Body)
		if err != nil {
			return &StorageError{Op: "get", Key: key, Err: err}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *StorageService) Delete(ctx context.Context, key string) error {
	key = EncodeKey(key)

	callCtx, cancel := s.callContext(ctx)
	defer cancel()

	_, err := s.s3Client.DeleteObjectWithContext(callCtx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return &StorageError{Op: "delete", Key: key, Err: err}
	}
	return nil
}

// PublicURL is deterministic: https://{bucket}.s3.{region}.amazonaws.com/{key}
// unless a public base URL is configured.
func (s *StorageService) PublicURL(key string) string {
	key = EncodeKey(key)
	if s.publicBase != "" {
		return fmt.Sprintf("%s/%s", s.publicBase, key)
	}

	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
}

func (s *StorageService) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func isMissingObject(err error) bool {
	if aerr, ok := err.(awserr.RequestFailure); ok {
		return aerr.StatusCode() == 404
	}
	if aerr, ok := err.(awserr.Error); ok {
		return aerr.Code() == s3.ErrCodeNoSuchKey
	}
	return false
}

// ObjectKey joins key parts and strips spaces from each, which is the
// layout used for derived print assets.
func ObjectKey(parts ...string) string {
	cleaned := make([]string, 0, len(parts))
	for _, p := range parts {
		cleaned = append(cleaned, strings.ReplaceAll(p, " ", ""))
	}
	return path.Join(cleaned...)
}

// DetectImageType checks the file signature and returns its content type.
func DetectImageType(data []byte) (string, bool) {
	// Check for JPEG
	if len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "image/jpeg", true
	}

	// Check for PNG
	if len(data) >= 8 && data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png", true
	}

	return "", false
}
