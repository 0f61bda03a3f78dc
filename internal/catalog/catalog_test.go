package catalog

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/prappser/prappser_cdn/internal/cdnerr"
	"github.com/prappser/prappser_cdn/internal/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCatalog_ChunksBeforeMetadataShouldCompleteEntry(t *testing.T) {
	// given
	c := openTestCatalog(t)
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return fixed }
	meta := metadata.New("a.bin", "abc", "docs/a.bin", 2500000, metadata.DefaultChunkSize)

	// when
	require.NoError(t, c.RecordChunk("docs/a.bin", 0, 1048576))
	require.NoError(t, c.RecordChunk("docs/a.bin", 1, 1048576))
	partial, err := c.Get("docs/a.bin")
	require.NoError(t, err)

	require.NoError(t, c.RecordChunk("docs/a.bin", 2, 402848))
	require.NoError(t, c.RecordMetadata(meta))
	entry, err := c.Get("docs/a.bin")

	// then
	require.NoError(t, err)
	assert.Nil(t, partial.Metadata)
	assert.False(t, partial.Complete)
	assert.Equal(t, uint64(2), partial.ChunksReceived)

	assert.True(t, entry.Complete)
	assert.Equal(t, uint64(3), entry.ChunksReceived)
	assert.Equal(t, uint64(2500000), entry.BytesReceived)
	assert.Equal(t, meta, entry.Metadata)
	assert.True(t, fixed.Equal(entry.UpdatedAt))
}

func TestCatalog_RepeatedChunkShouldCountOnce(t *testing.T) {
	// given
	c := openTestCatalog(t)

	// when
	require.NoError(t, c.RecordChunk("r", 0, 10))
	require.NoError(t, c.RecordChunk("r", 0, 10))

	// then
	entry, err := c.Get("r")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), entry.ChunksReceived)
	assert.Equal(t, uint64(10), entry.BytesReceived)
}

func TestCatalog_GetUnknownShouldBeNotFound(t *testing.T) {
	// given
	c := openTestCatalog(t)

	// when
	_, err := c.Get("missing")

	// then
	assert.ErrorIs(t, err, cdnerr.ErrNotFound)
}

func TestCatalog_ListShouldReturnEntriesByName(t *testing.T) {
	// given
	c := openTestCatalog(t)
	require.NoError(t, c.RecordMetadata(metadata.New("b", "", "b", 0, 4)))
	require.NoError(t, c.RecordChunk("a", 0, 3))

	// when
	entries, err := c.List()

	// then
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].ResourceName)
	assert.Equal(t, "b", entries[1].ResourceName)
	assert.Equal(t, uint64(1), entries[1].Metadata.Chunks)
}
