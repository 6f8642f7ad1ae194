package artifacts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3Config configures an S3 or MinIO backed store
type S3Config struct {
	Bucket string
	Region string
	// e.g. "http://127.0.0.1:9000" for MinIO; empty uses AWS
	Endpoint string
	Username string
	Password string
	Prefix   string
}

// S3Store keeps artifacts in a bucket
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Store connects to the configured endpoint
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	client := s3.NewFromConfig(aws.Config{Region: cfg.Region}, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
		if cfg.Username != "" {
			o.Credentials = credentials.NewStaticCredentialsProvider(cfg.Username, cfg.Password, "")
		}
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})
	return &S3Store{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (s *S3Store) objectKey(key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	if s.prefix == "" || s.prefix == "." {
		return key, nil
	}
	return path.Join(s.prefix, key), nil
}

// Put uploads data only if no object exists at key
func (s *S3Store) Put(ctx context.Context, key string, data []byte) error {
	objectKey, err := s.objectKey(key)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectKey),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
		IfNoneMatch: aws.String("*"),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "PreconditionFailed" {
			return fmt.Errorf("%w: %s", ErrExists, key)
		}
		return fmt.Errorf("couldn't upload %s to bucket %s: %w", objectKey, s.bucket, err)
	}
	return nil
}

// Get downloads the object at key
func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	objectKey, err := s.objectKey(key)
	if err != nil {
		return nil, err
	}
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("couldn't fetch %s from bucket %s: %w", objectKey, s.bucket, err)
	}
	defer result.Body.Close()

	body, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("couldn't read %s: %w", objectKey, err)
	}
	return body, nil
}

// Exists checks for the object with a HEAD request
func (s *S3Store) Exists(ctx context.Context, key string) (bool, error) {
	objectKey, err := s.objectKey(key)
	if err != nil {
		return false, err
	}
	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("couldn't stat %s in bucket %s: %w", objectKey, s.bucket, err)
	}
	return true, nil
}

// Delete removes the object at key
func (s *S3Store) Delete(ctx context.Context, key string) error {
	objectKey, err := s.objectKey(key)
	if err != nil {
		return err
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("couldn't delete %s from bucket %s: %w", objectKey, s.bucket, err)
	}
	return nil
}

// URI returns s3://bucket/key
func (s *S3Store) URI(key string) string {
	objectKey, err := s.objectKey(key)
	if err != nil {
		objectKey = key
	}
	return "s3://" + s.bucket + "/" + objectKey
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && (apiErr.ErrorCode() == "NoSuchKey" || apiErr.ErrorCode() == "NotFound")
}
