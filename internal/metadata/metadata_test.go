package metadata

import (
	"testing"

	"github.com/prappser/prappser_cdn/internal/cdnerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkCount_ShouldAddTrailingSlot(t *testing.T) {
	tests := []struct {
		size, chunkSize, want uint64
	}{
		{size: 0, chunkSize: 1024, want: 1},
		{size: 1, chunkSize: 1024, want: 1},
		{size: 1023, chunkSize: 1024, want: 1},
		{size: 1024, chunkSize: 1024, want: 2},
		{size: 1025, chunkSize: 1024, want: 2},
		{size: 2048, chunkSize: 1024, want: 3},
		{size: 2_500_000, chunkSize: DefaultChunkSize, want: 3},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ChunkCount(tt.size, tt.chunkSize), "size=%d chunkSize=%d", tt.size, tt.chunkSize)
	}
}

func TestFileMetadata_Marshal_ShouldUseSnakeCaseFields(t *testing.T) {
	// given
	m := New("movie.mkv", "0cc175b9c0f1b6a831c399e269772661", "media/movie.mkv", 2_500_000, DefaultChunkSize)

	// when
	data, err := m.Marshal()

	// then
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"filename": "movie.mkv",
		"checksum": "0cc175b9c0f1b6a831c399e269772661",
		"chunk_size": 1048576,
		"chunks": 3,
		"resource_name": "media/movie.mkv",
		"size": 2500000
	}`, string(data))
}

func TestUnmarshal_ShouldRestoreRecord(t *testing.T) {
	// given
	original := New("a.bin", "abc", "dir/a.bin", 10, 4)
	data, err := original.Marshal()
	require.NoError(t, err)

	// when
	decoded, err := Unmarshal(data)

	// then
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestUnmarshal_ShouldRejectGarbage(t *testing.T) {
	// when
	_, err := Unmarshal([]byte("not json"))

	// then
	assert.ErrorIs(t, err, cdnerr.ErrMalformedMetadata)
}

func TestValidate_ShouldRejectInconsistentRecords(t *testing.T) {
	tests := []struct {
		name string
		meta FileMetadata
	}{
		{name: "zero chunk size", meta: FileMetadata{ResourceName: "r", ChunkSize: 0, Chunks: 1}},
		{name: "missing resource", meta: FileMetadata{ChunkSize: 4, Chunks: 1}},
		{name: "too few chunks", meta: FileMetadata{ResourceName: "r", ChunkSize: 4, Chunks: 2, Size: 9}},
		{name: "too many chunks", meta: FileMetadata{ResourceName: "r", ChunkSize: 4, Chunks: 9, Size: 9}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.meta.Validate(), cdnerr.ErrMalformedMetadata)
		})
	}
}

func TestValidate_ShouldAcceptCeilingChunkCount(t *testing.T) {
	// given - a publisher that does not add the trailing slot
	m := FileMetadata{ResourceName: "r", ChunkSize: 4, Chunks: 2, Size: 8}

	// then
	assert.NoError(t, m.Validate())
}

func TestValidate_ShouldAcceptExtremeSizesWithoutOverflow(t *testing.T) {
	// given - chunks*chunkSize wraps around uint64 here
	m := New("huge.bin", "", "r", 1<<63, 1<<63)

	// when
	err := m.Validate()

	// then
	require.NoError(t, err)
	assert.Equal(t, uint64(2), m.Chunks)
}
