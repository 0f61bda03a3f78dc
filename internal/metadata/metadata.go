package metadata

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/prappser/prappser_cdn/internal/cdnerr"
)

const DefaultChunkSize uint64 = 1 << 20 // 1 MiB

// FileMetadata describes one uploaded resource. It is published after all of
// the resource's chunks, so its presence marks the upload as complete.
type FileMetadata struct {
	Filename     string `json:"filename"`
	Checksum     string `json:"checksum"`
	ChunkSize    uint64 `json:"chunk_size"`
	Chunks       uint64 `json:"chunks"`
	ResourceName string `json:"resource_name"`
	Size         uint64 `json:"size"`
}

// ChunkCount returns size/chunkSize + 1. The extra slot is kept even when
// size is an exact multiple of chunkSize; the last chunk is then empty.
func ChunkCount(size, chunkSize uint64) uint64 {
	return size/chunkSize + 1
}

func New(filename, checksum, resourceName string, size, chunkSize uint64) *FileMetadata {
	return &FileMetadata{
		Filename:     filename,
		Checksum:     checksum,
		ChunkSize:    chunkSize,
		Chunks:       ChunkCount(size, chunkSize),
		ResourceName: resourceName,
		Size:         size,
	}
}

// Validate checks that the record can drive a reconstruction.
func (m *FileMetadata) Validate() error {
	if m.ResourceName == "" {
		return fmt.Errorf("%w: resource_name is empty", cdnerr.ErrMalformedMetadata)
	}
	if m.ChunkSize == 0 {
		return fmt.Errorf("%w: chunk_size is zero", cdnerr.ErrMalformedMetadata)
	}
	// Accept both ceil(size/chunkSize) and the size/chunkSize+1 count.
	// Bounds are compared by division so extreme sizes cannot overflow.
	minChunks := m.Size / m.ChunkSize
	if m.Size%m.ChunkSize != 0 {
		minChunks++
	}
	if m.Chunks == 0 || m.Chunks-1 > m.Size/m.ChunkSize || m.Chunks < minChunks {
		return fmt.Errorf("%w: %d chunks of %d bytes cannot hold %d bytes", cdnerr.ErrMalformedMetadata, m.Chunks, m.ChunkSize, m.Size)
	}
	return nil
}

func (m *FileMetadata) Marshal() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", cdnerr.ErrMalformedMetadata, err)
	}
	return data, nil
}

// Unmarshal parses and validates a serialized record.
func Unmarshal(data []byte) (*FileMetadata, error) {
	var m FileMetadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", cdnerr.ErrMalformedMetadata, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}
