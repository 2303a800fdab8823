package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectName(t *testing.T) {
	assert.Equal(t, "snapshots/product_embeddings_2024-08-01T12-30-45-123Z.json",
		ObjectName("/var/data/snapshots/product_embeddings_2024-08-01T12-30-45-123Z.json"))
}

func TestUploadSnapshot(t *testing.T) {
	var (
		mu   sync.Mutex
		path string
		body []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			w.WriteHeader(http.StatusNotImplemented)
			return
		}
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		path, body = r.URL.Path, b
		mu.Unlock()
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	client, err := minio.New(u.Host, &minio.Options{
		Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
		Secure: false,
		Region: "us-east-1",
	})
	require.NoError(t, err)

	local := filepath.Join(t.TempDir(), "review_embeddings_2024-08-01T12-30-45-123Z.json")
	require.NoError(t, os.WriteFile(local, []byte(`[{"productId":1,"embedding":[0.1]}]`), 0o644))

	object, err := NewSnapshotUploader(client, "smarthomes").UploadSnapshot(context.Background(), local)
	require.NoError(t, err)
	assert.Equal(t, "snapshots/review_embeddings_2024-08-01T12-30-45-123Z.json", object)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "/smarthomes/snapshots/review_embeddings_2024-08-01T12-30-45-123Z.json", path)
	assert.Contains(t, string(body), `"productId":1`)
}
