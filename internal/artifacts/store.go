// Package artifacts stores trained model files under version-scoped keys.
// Keys are written once; a second Put to the same key fails with ErrExists.
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/killallgit/sensitive-data-api/pkg/config"
)

var (
	ErrNotFound   = errors.New("artifact not found")
	ErrExists     = errors.New("artifact already exists")
	ErrInvalidKey = errors.New("invalid artifact key")
)

// Store is a write-once blob store for model artifacts
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	// URI is a human-readable location for key
	URI(key string) string
}

// ModelKey is the key of the model file for a lineage version
func ModelKey(lineage, version string) string {
	return path.Join(lineage, version, "model.json")
}

func validateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." || part == "." || part == "" {
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return nil
}

// New builds the store selected by the artifacts configuration
func New(ctx context.Context, cfg config.ArtifactsConfig) (Store, error) {
	switch cfg.Backend {
	case "", "filesystem":
		return NewFilesystemStore(cfg.BasePath)
	case "s3":
		return NewS3Store(ctx, S3Config{
			Bucket:   cfg.Bucket,
			Region:   cfg.Region,
			Endpoint: cfg.Endpoint,
			Username: cfg.Username,
			Password: cfg.Password,
			Prefix:   cfg.BasePath,
		})
	default:
		return nil, fmt.Errorf("unknown artifacts backend %q", cfg.Backend)
	}
}

// GetWithRetry fetches key, retrying transient failures. A missing key is not retried.
func GetWithRetry(ctx context.Context, store Store, key string, retries uint64, base time.Duration) ([]byte, error) {
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	var data []byte
	err := retry.Do(ctx, retry.WithMaxRetries(retries, retry.NewFibonacci(base)), func(ctx context.Context) error {
		b, err := store.Get(ctx, key)
		if err != nil {
			if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidKey) {
				return err
			}
			return retry.RetryableError(err)
		}
		data = b
		return nil
	})
	return data, err
}
