package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/prappser/prappser_cdn/internal/cdnerr"
	"github.com/prappser/prappser_cdn/internal/shard"
)

// ShardStore lays chunks and metadata records out in per-resource shard
// directories on top of a Backend.
//
// It does not serialize writers. Concurrent writes of the same chunk index
// race and the last rename wins.
type ShardStore struct {
	backend Backend
	layout  shard.Layout
}

func NewShardStore(backend Backend) *ShardStore {
	return &ShardStore{backend: backend}
}

func (s *ShardStore) WriteChunk(ctx context.Context, resourceName string, index uint64, data []byte) error {
	return s.backend.Store(ctx, s.layout.ChunkPath(resourceName, index), bytes.NewReader(data))
}

func (s *ShardStore) WriteMetadata(ctx context.Context, resourceName string, data []byte) error {
	return s.backend.Store(ctx, s.layout.MetadataPath(resourceName), bytes.NewReader(data))
}

func (s *ShardStore) ReadChunk(ctx context.Context, resourceName string, index uint64) ([]byte, error) {
	return s.read(ctx, s.layout.ChunkPath(resourceName, index))
}

func (s *ShardStore) ReadMetadata(ctx context.Context, resourceName string) ([]byte, error) {
	return s.read(ctx, s.layout.MetadataPath(resourceName))
}

func (s *ShardStore) read(ctx context.Context, path string) ([]byte, error) {
	rc, err := s.backend.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", cdnerr.ErrIO, path, err)
	}
	return data, nil
}
