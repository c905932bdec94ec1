package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/erp/shipping/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func testStorageConfig(endpoint string) *config.StorageConfig {
	return &config.StorageConfig{
		Enabled:      true,
		Endpoint:     endpoint,
		Bucket:       "shipping-labels",
		AccessKey:    "test-key",
		SecretKey:    "test-secret",
		UsePathStyle: true,
	}
}

func TestNewS3LabelStorage_Validation(t *testing.T) {
	ctx := context.Background()

	_, err := NewS3LabelStorage(ctx, nil)
	assert.ErrorIs(t, err, ErrStorageConfigRequired)

	tests := []struct {
		name    string
		mutate  func(*config.StorageConfig)
		wantErr string
	}{
		{"missing bucket", func(c *config.StorageConfig) { c.Bucket = "" }, "bucket is required"},
		{"missing access key", func(c *config.StorageConfig) { c.AccessKey = "" }, "access key is required"},
		{"missing secret key", func(c *config.StorageConfig) { c.SecretKey = "" }, "secret key is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testStorageConfig("")
			tt.mutate(cfg)
			_, err := NewS3LabelStorage(ctx, cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("defaults", func(t *testing.T) {
		s, err := NewS3LabelStorage(ctx, testStorageConfig(""), WithLogger(zaptest.NewLogger(t)))
		require.NoError(t, err)
		assert.Equal(t, "shipping-labels", s.Bucket())
		assert.Equal(t, defaultPresignExpiration, s.presignExpiration)
	})

	t.Run("presign option", func(t *testing.T) {
		s, err := NewS3LabelStorage(ctx, testStorageConfig(""), WithPresignExpiration(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, time.Hour, s.presignExpiration)
	})
}

func TestNormalizeEndpoint(t *testing.T) {
	assert.Equal(t, defaultEndpoint, normalizeEndpoint("  ", false))
	assert.Equal(t, "http://minio:9000", normalizeEndpoint("minio:9000", false))
	assert.Equal(t, "https://minio:9000", normalizeEndpoint("minio:9000/", true))
	assert.Equal(t, "http://minio:9000", normalizeEndpoint("http://minio:9000", true))
}

func TestS3LabelStorage_GenerateDownloadURL(t *testing.T) {
	s, err := NewS3LabelStorage(context.Background(), testStorageConfig("http://localhost:9000"))
	require.NoError(t, err)

	t.Run("presigns a GET for the label", func(t *testing.T) {
		url, expiresAt, err := s.GenerateDownloadURL(context.Background(), "labels/SHIP-0001/0.pdf", 30*time.Minute)
		require.NoError(t, err)
		assert.Contains(t, url, "localhost:9000/shipping-labels/labels/SHIP-0001/0.pdf")
		assert.Contains(t, url, "X-Amz-Expires=1800")
		assert.WithinDuration(t, time.Now().Add(30*time.Minute), expiresAt, 5*time.Second)
	})

	t.Run("falls back to configured expiration", func(t *testing.T) {
		url, _, err := s.GenerateDownloadURL(context.Background(), "labels/SHIP-0001/0.pdf", 0)
		require.NoError(t, err)
		assert.Contains(t, url, "X-Amz-Expires=900")
	})

	t.Run("empty key", func(t *testing.T) {
		_, _, err := s.GenerateDownloadURL(context.Background(), "", time.Minute)
		assert.ErrorIs(t, err, ErrStorageKeyRequired)
	})
}

type recordedRequest struct {
	method      string
	path        string
	contentType string
}

func newFakeS3(t *testing.T, bucketExists bool) (*httptest.Server, func() []recordedRequest) {
	t.Helper()
	var (
		mu       sync.Mutex
		requests []recordedRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		mu.Lock()
		requests = append(requests, recordedRequest{r.Method, r.URL.Path, r.Header.Get("Content-Type")})
		mu.Unlock()

		if r.Method == http.MethodHead && !bucketExists {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []recordedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]recordedRequest(nil), requests...)
	}
}

func TestS3LabelStorage_Upload(t *testing.T) {
	srv, requests := newFakeS3(t, true)
	s, err := NewS3LabelStorage(context.Background(), testStorageConfig(srv.URL))
	require.NoError(t, err)

	err = s.Upload(context.Background(), "labels/SHIP-0001/0.pdf", []byte("%PDF-1.4"), "application/pdf")
	require.NoError(t, err)

	reqs := requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPut, reqs[0].method)
	assert.Equal(t, "/shipping-labels/labels/SHIP-0001/0.pdf", reqs[0].path)
	assert.Equal(t, "application/pdf", reqs[0].contentType)

	assert.ErrorIs(t, s.Upload(context.Background(), "", nil, "application/pdf"), ErrStorageKeyRequired)
}

func TestS3LabelStorage_EnsureBucket(t *testing.T) {
	t.Run("existing bucket", func(t *testing.T) {
		srv, requests := newFakeS3(t, true)
		s, err := NewS3LabelStorage(context.Background(), testStorageConfig(srv.URL))
		require.NoError(t, err)

		require.NoError(t, s.EnsureBucket(context.Background()))
		reqs := requests()
		require.Len(t, reqs, 1)
		assert.Equal(t, http.MethodHead, reqs[0].method)
	})

	t.Run("creates missing bucket", func(t *testing.T) {
		srv, requests := newFakeS3(t, false)
		s, err := NewS3LabelStorage(context.Background(), testStorageConfig(srv.URL))
		require.NoError(t, err)

		require.NoError(t, s.EnsureBucket(context.Background()))
		reqs := requests()
		require.Len(t, reqs, 2)
		assert.Equal(t, http.MethodPut, reqs[1].method)
		assert.True(t, strings.HasPrefix(reqs[1].path, "/shipping-labels"))
	})
}
