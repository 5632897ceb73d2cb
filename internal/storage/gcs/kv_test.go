package gcs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func newTestKV(t *testing.T, handler http.Handler) *KV {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := storage.NewClient(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	kv, err := New(client, Config{Bucket: "test-bucket", Prefix: "/state/"})
	require.NoError(t, err)
	return kv
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	_, err = New(client, Config{})
	require.Error(t, err)

	kv, err := New(client, Config{Bucket: "b", Prefix: "state"})
	require.NoError(t, err)
	require.Equal(t, "state/", kv.prefix)
}

func TestKVSetUploadsObject(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"inProgress":true}`)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/upload/storage/v1/b/test-bucket/o")
		assert.Equal(t, "state/curator.tracking.products", r.URL.Query().Get("name"))
		assert.Equal(t, "multipart", r.URL.Query().Get("uploadType"))

		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Contains(t, string(body), string(payload))

		fmt.Fprintln(w, `{ "name": "state/curator.tracking.products" }`)
	})

	kv := newTestKV(t, handler)
	require.NoError(t, kv.Set(context.Background(), "curator.tracking.products", payload))
}

func TestKVSetError(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	kv := newTestKV(t, handler)
	require.Error(t, kv.Set(context.Background(), "curator.tracking.products", []byte("x")))
}

func TestKVDeleteIgnoresMissingObject(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNotFound)
	})

	kv := newTestKV(t, handler)
	require.NoError(t, kv.Delete(context.Background(), "curator.tracking.posts"))
}

func TestKVRejectsInvalidKey(t *testing.T) {
	t.Parallel()

	kv := newTestKV(t, http.NotFoundHandler())
	_, err := kv.Get(context.Background(), "../x")
	require.Error(t, err)
}
