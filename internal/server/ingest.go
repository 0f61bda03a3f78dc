package server

import (
	"context"
	"fmt"

	"github.com/prappser/prappser_cdn/internal/catalog"
	"github.com/prappser/prappser_cdn/internal/storage"
	"github.com/rs/zerolog/log"
)

// IngestHandler persists decoded messages into the shard store. It keeps no
// state between calls.
type IngestHandler struct {
	store   *storage.ShardStore
	catalog *catalog.Catalog
}

// NewIngestHandler returns a handler writing to store. cat may be nil.
func NewIngestHandler(store *storage.ShardStore, cat *catalog.Catalog) *IngestHandler {
	return &IngestHandler{store: store, catalog: cat}
}

func (h *IngestHandler) Handle(ctx context.Context, msg Message) error {
	switch m := msg.(type) {
	case *ChunkMessage:
		return h.ingestChunk(ctx, m)
	case *MetadataMessage:
		return h.ingestMetadata(ctx, m)
	case *DeleteMessage:
		// Stored chunks are never removed through the key space.
		log.Debug().Str("key", m.Key()).Msg("[INGEST] Delete ignored")
		return nil
	default:
		return fmt.Errorf("unexpected message %T", msg)
	}
}

func (h *IngestHandler) ingestChunk(ctx context.Context, m *ChunkMessage) error {
	if err := h.store.WriteChunk(ctx, m.ResourceName, m.Index, m.Data); err != nil {
		return fmt.Errorf("storing chunk %d of %q: %w", m.Index, m.ResourceName, err)
	}

	log.Debug().
		Str("resource", m.ResourceName).
		Uint64("chunk", m.Index).
		Int("bytes", len(m.Data)).
		Msg("[INGEST] Chunk stored")

	if h.catalog != nil {
		if err := h.catalog.RecordChunk(m.ResourceName, m.Index, len(m.Data)); err != nil {
			log.Warn().Err(err).Str("resource", m.ResourceName).Msg("[CATALOG] Failed to record chunk")
		}
	}
	return nil
}

func (h *IngestHandler) ingestMetadata(ctx context.Context, m *MetadataMessage) error {
	name := m.Metadata.ResourceName
	if m.KeyName != name {
		log.Warn().
			Str("key", m.Key()).
			Str("resource", name).
			Msg("[INGEST] Metadata resource name differs from key, sharding by record")
	}

	if err := h.store.WriteMetadata(ctx, name, m.Raw); err != nil {
		return fmt.Errorf("storing metadata of %q: %w", name, err)
	}

	log.Info().
		Str("resource", name).
		Str("filename", m.Metadata.Filename).
		Uint64("size", m.Metadata.Size).
		Uint64("chunks", m.Metadata.Chunks).
		Msg("[INGEST] Metadata stored")

	if h.catalog != nil {
		if err := h.catalog.RecordMetadata(m.Metadata); err != nil {
			log.Warn().Err(err).Str("resource", name).Msg("[CATALOG] Failed to record metadata")
		}
	}
	return nil
}
