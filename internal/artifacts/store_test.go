package artifacts

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/killallgit/sensitive-data-api/pkg/config"
)

func TestModelKey(t *testing.T) {
	assert.Equal(t, "default/v3/model.json", ModelKey("default", "v3"))
}

func TestValidateKey(t *testing.T) {
	tests := []struct {
		key     string
		wantErr bool
	}{
		{"default/v1/model.json", false},
		{"", true},
		{"/abs/path", true},
		{"default/../../etc/passwd", true},
		{"default//model.json", true},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			err := validateKey(tt.key)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidKey)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// storeContract runs the behaviour every Store must share
func storeContract(t *testing.T, store Store) {
	ctx := context.Background()
	key := ModelKey("default", "v1")

	exists, err := store.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = store.Get(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Put(ctx, key, []byte(`{"weights":{}}`)))

	exists, err = store.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)

	data, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, `{"weights":{}}`, string(data))

	err = store.Put(ctx, key, []byte(`{"overwritten":true}`))
	assert.ErrorIs(t, err, ErrExists)

	data, err = store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, `{"weights":{}}`, string(data), "existing artifacts are never replaced")

	require.NoError(t, store.Delete(ctx, key))
	require.NoError(t, store.Delete(ctx, key))

	exists, err = store.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)

	assert.ErrorIs(t, store.Put(ctx, "../escape", []byte("x")), ErrInvalidKey)
}

func TestFilesystemStore(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFilesystemStore(dir)
	require.NoError(t, err)

	storeContract(t, store)
	assert.True(t, strings.HasPrefix(store.URI("default/v2/model.json"), dir))
}

// fakeS3 serves the subset of the S3 REST API the store uses
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := strings.TrimPrefix(r.URL.Path, "/")
	switch r.Method {
	case http.MethodPut:
		if _, ok := f.objects[key]; ok && r.Header.Get("If-None-Match") == "*" {
			w.WriteHeader(http.StatusPreconditionFailed)
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>PreconditionFailed</Code><Message>At least one of the pre-conditions you specified did not hold</Message></Error>`)
			return
		}
		body, _ := io.ReadAll(r.Body)
		f.objects[key] = body
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet, http.MethodHead:
		body, ok := f.objects[key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			if r.Method == http.MethodGet {
				_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`)
			}
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			_, _ = w.Write(body)
		}
	case http.MethodDelete:
		delete(f.objects, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestS3Store(t *testing.T) {
	fake := &fakeS3{objects: make(map[string][]byte)}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	store, err := NewS3Store(context.Background(), S3Config{
		Bucket:   "models",
		Region:   "us-east-1",
		Endpoint: srv.URL,
		Username: "minio",
		Password: "minio123",
		Prefix:   "artifacts",
	})
	require.NoError(t, err)

	storeContract(t, store)
	assert.Equal(t, "s3://models/artifacts/default/v1/model.json", store.URI("default/v1/model.json"))

	require.NoError(t, store.Put(context.Background(), "default/v9/model.json", []byte("{}")))
	fake.mu.Lock()
	_, ok := fake.objects["models/artifacts/default/v9/model.json"]
	fake.mu.Unlock()
	assert.True(t, ok, "objects are addressed path-style under the prefix")
}

func TestNew(t *testing.T) {
	store, err := New(context.Background(), config.ArtifactsConfig{Backend: "filesystem", BasePath: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FilesystemStore{}, store)

	_, err = New(context.Background(), config.ArtifactsConfig{Backend: "s3"})
	assert.Error(t, err)

	_, err = New(context.Background(), config.ArtifactsConfig{Backend: "ftp"})
	assert.Error(t, err)
}

type flakyStore struct {
	Store
	failures atomic.Int32
}

func (f *flakyStore) Get(ctx context.Context, key string) ([]byte, error) {
	if f.failures.Add(-1) >= 0 {
		return nil, errors.New("connection reset")
	}
	return f.Store.Get(ctx, key)
}

func TestGetWithRetry(t *testing.T) {
	base, err := NewFilesystemStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, base.Put(context.Background(), "l/v1/model.json", []byte("ok")))

	flaky := &flakyStore{Store: base}
	flaky.failures.Store(2)

	data, err := GetWithRetry(context.Background(), flaky, "l/v1/model.json", 3, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(data))

	flaky.failures.Store(0)
	_, err = GetWithRetry(context.Background(), flaky, "l/v2/model.json", 3, time.Millisecond)
	assert.ErrorIs(t, err, ErrNotFound)
}
