package services

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ratedarts/fulfillment/internal/config"
)

// fakeS3 serves the handful of path style S3 calls the storage service makes.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := strings.TrimPrefix(r.URL.Path, "/")
	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[key] = body
		f.types[key] = r.Header.Get("Content-Type")
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		body, ok := f.objects[key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`)
			return
		}
		w.Header().Set("Content-Type", f.types[key])
		_, _ = w.Write(body)
	case http.MethodDelete:
		delete(f.objects, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestStorage(t *testing.T, publicBase string) (*StorageService, *fakeS3) {
	t.Helper()
	fake := &fakeS3{objects: make(map[string][]byte), types: make(map[string]string)}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	storage, err := NewStorageService(config.AWSConfig{
		Region:          "us-east-1",
		AccessKeyID:     "AKIATEST",
		SecretAccessKey: "secret",
		S3Bucket:        "rated-arts",
		PublicBaseURL:   publicBase,
		TimeoutSeconds:  5,
		MaxRetries:      1,
	}, quietLogger(), WithEndpoint(server.URL))
	require.NoError(t, err)
	return storage, fake
}

func TestStorageService_PutGetDelete(t *testing.T) {
	storage, fake := newTestStorage(t, "")
	ctx := context.Background()

	url, err := storage.Put(ctx, "AnaLopez/SeaWall/8x10.jpg", []byte("print"), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "https://rated-arts.s3.us-east-1.amazonaws.com/AnaLopez/SeaWall/8x10.jpg", url)
	assert.Equal(t, "image/jpeg", fake.types["rated-arts/AnaLopez/SeaWall/8x10.jpg"])

	data, err := storage.Get(ctx, "AnaLopez/SeaWall/8x10.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte("print"), data)

	require.NoError(t, storage.Delete(ctx, "AnaLopez/SeaWall/8x10.jpg"))

	_, err = storage.Get(ctx, "AnaLopez/SeaWall/8x10.jpg")
	var storageErr *StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.True(t, storageErr.Missing)
}

func TestStorageService_PublicURL(t *testing.T) {
	storage, _ := newTestStorage(t, "https://cdn.example.com/")
	assert.Equal(t, "https://cdn.example.com/Ana+Lopez/original.jpg", storage.PublicURL("Ana Lopez/original.jpg"))
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "AnaLopez/SeaWall/16x20.jpg", ObjectKey("Ana Lopez", "Sea Wall", "16x20.jpg"))
	assert.Equal(t, "AnaLopez/SeaWall/16x20.jpg", PrintAssetKey("Ana Lopez", "Sea Wall", "16x20"))
	assert.Equal(t, "a+b", EncodeKey("a b"))
}
