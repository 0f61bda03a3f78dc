package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prappser/prappser_cdn/internal/cdnerr"
	"github.com/prappser/prappser_cdn/internal/shard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocal(t *testing.T) (*LocalStorage, string) {
	t.Helper()
	dir := t.TempDir()
	backend, err := NewBackend(&BackendConfig{Type: StorageTypeLocal, LocalPath: dir})
	require.NoError(t, err)
	return backend.(*LocalStorage), dir
}

func TestLocalStorage_StoreShouldCreateDirectoriesAndReplaceContent(t *testing.T) {
	// given
	ctx := context.Background()
	local, dir := newLocal(t)

	// when
	require.NoError(t, local.Store(ctx, "ABC/0", strings.NewReader("first")))
	require.NoError(t, local.Store(ctx, "ABC/0", strings.NewReader("second")))

	// then
	content, err := os.ReadFile(filepath.Join(dir, "ABC", "0"))
	require.NoError(t, err)
	assert.Equal(t, "second", string(content))

	entries, err := os.ReadDir(filepath.Join(dir, "ABC"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestLocalStorage_MissingObjectShouldBeNotFound(t *testing.T) {
	// given
	ctx := context.Background()
	local, _ := newLocal(t)

	// when
	_, getErr := local.Get(ctx, "ABC/7")
	exists, existsErr := local.Exists(ctx, "ABC/7")

	// then
	assert.ErrorIs(t, getErr, cdnerr.ErrNotFound)
	require.NoError(t, existsErr)
	assert.False(t, exists)
}

func TestLocalStorage_ShouldRejectPathsOutsideBase(t *testing.T) {
	// given
	ctx := context.Background()
	local, _ := newLocal(t)

	// when
	err := local.Store(ctx, "../escape", strings.NewReader("x"))

	// then
	assert.ErrorIs(t, err, cdnerr.ErrInvalidPath)
}

func TestLocalStorage_GetShouldStreamStoredContent(t *testing.T) {
	// given
	ctx := context.Background()
	local, _ := newLocal(t)
	require.NoError(t, local.Store(ctx, "ABC/metadata", strings.NewReader(`{"size":1}`)))

	// when
	rc, err := local.Get(ctx, "ABC/metadata")
	require.NoError(t, err)
	defer rc.Close()
	content, err := io.ReadAll(rc)

	// then
	require.NoError(t, err)
	assert.Equal(t, `{"size":1}`, string(content))
}

func TestShardStore_ShouldUseShardLayout(t *testing.T) {
	// given
	ctx := context.Background()
	local, dir := newLocal(t)
	store := NewShardStore(local)
	name := "videos/2024/intro.mp4"

	// when
	require.NoError(t, store.WriteChunk(ctx, name, 2, []byte{1, 2, 3}))
	require.NoError(t, store.WriteMetadata(ctx, name, []byte(`{}`)))

	// then
	shardDir := filepath.Join(dir, shard.Digest(name))
	chunk, err := os.ReadFile(filepath.Join(shardDir, "2"))
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, chunk)

	meta, err := os.ReadFile(filepath.Join(shardDir, shard.MetadataFile))
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(meta))

	readBack, err := store.ReadChunk(ctx, name, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, readBack)
}

func TestShardStore_ReadMissingChunkShouldBeNotFound(t *testing.T) {
	// given
	local, _ := newLocal(t)
	store := NewShardStore(local)

	// when
	_, err := store.ReadChunk(context.Background(), "never-uploaded", 0)

	// then
	assert.ErrorIs(t, err, cdnerr.ErrNotFound)
}
