package backup_test

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/fjell-io/spanner-orm/backup"
)

func putString(t *testing.T, store backup.ObjectStore, name, content string) {
	t.Helper()
	n, err := store.Put(context.Background(), name, "text/plain", strings.NewReader(content))
	require.NoError(t, err)
	require.Equal(t, int64(len(content)), n)
}

func TestLocalStore_PutGet(t *testing.T) {
	store, err := backup.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	putString(t, store, "snap1/tables/Users.jsonl", `{"id":1}`+"\n")

	rc, err := store.Get(ctx, "snap1/tables/Users.jsonl")
	require.NoError(t, err)
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, `{"id":1}`+"\n", string(b))
}

func TestLocalStore_GetMissing(t *testing.T) {
	store, err := backup.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "nope/manifest.json")
	require.Error(t, err)
	assert.ErrorIs(t, err, backup.ErrObjectNotFound)
	assert.Contains(t, err.Error(), "nope/manifest.json")
}

func TestLocalStore_InvalidNames(t *testing.T) {
	store, err := backup.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	tests := []struct {
		name   string
		object string
	}{
		{name: "empty", object: ""},
		{name: "dot", object: "."},
		{name: "dotdot", object: ".."},
		{name: "escape above base", object: "../escape"},
		{name: "nested escape", object: "a/../../escape"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Put(ctx, tt.object, "text/plain", strings.NewReader("x"))
			assert.ErrorContains(t, err, "invalid object name")
		})
	}

	// the guard covers every operation
	_, err = store.Get(ctx, "../escape")
	assert.ErrorContains(t, err, "invalid object name")
	assert.ErrorContains(t, store.Delete(ctx, "../escape"), "invalid object name")
}

func TestLocalStore_Delete(t *testing.T) {
	store, err := backup.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	putString(t, store, "snap1/manifest.json", "{}")
	require.NoError(t, store.Delete(ctx, "snap1/manifest.json"))
	_, err = store.Get(ctx, "snap1/manifest.json")
	assert.ErrorIs(t, err, backup.ErrObjectNotFound)

	// deleting a missing object is not an error
	assert.NoError(t, store.Delete(ctx, "snap1/manifest.json"))
}

func TestLocalStore_List(t *testing.T) {
	store, err := backup.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	putString(t, store, "b/manifest.json", "{}")
	putString(t, store, "a/tables/Users.jsonl", "")
	putString(t, store, "a/manifest.json", "{}")

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a/manifest.json", "a/tables/Users.jsonl", "b/manifest.json"}, names)

	names, err = store.List(ctx, "a/")
	require.NoError(t, err)
	assert.Equal(t, []string{"a/manifest.json", "a/tables/Users.jsonl"}, names)

	names, err = store.List(ctx, "zzz")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestNewStore(t *testing.T) {
	ctx := context.Background()

	t.Run("defaults to local", func(t *testing.T) {
		store, err := backup.NewStore(ctx, backup.StoreConfig{LocalBasePath: t.TempDir()}, nil)
		require.NoError(t, err)
		assert.IsType(t, &backup.LocalStore{}, store)
	})

	t.Run("gcs", func(t *testing.T) {
		store, err := backup.NewStore(ctx, backup.StoreConfig{Mode: "gcs", Bucket: "b", Prefix: "p"},
			nil, option.WithoutAuthentication())
		require.NoError(t, err)
		gcs, ok := store.(*backup.GCSStore)
		require.True(t, ok)
		assert.NoError(t, gcs.Close())
	})

	t.Run("gcs requires a bucket", func(t *testing.T) {
		_, err := backup.NewStore(ctx, backup.StoreConfig{Mode: "gcs"}, nil)
		assert.ErrorContains(t, err, "bucket required for gcs storage")
	})

	t.Run("unknown mode", func(t *testing.T) {
		_, err := backup.NewStore(ctx, backup.StoreConfig{Mode: "s3"}, nil)
		assert.ErrorContains(t, err, "unsupported storage mode: s3")
	})
}
