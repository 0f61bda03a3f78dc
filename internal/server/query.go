package server

import (
	"context"
	"fmt"

	"github.com/prappser/prappser_cdn/internal/keyspace"
	"github.com/prappser/prappser_cdn/internal/storage"
	"github.com/prappser/prappser_cdn/internal/transport"
)

type QueryHandler struct {
	ks    keyspace.KeySpace
	store *storage.ShardStore
}

func NewQueryHandler(ks keyspace.KeySpace, store *storage.ShardStore) *QueryHandler {
	return &QueryHandler{ks: ks, store: store}
}

// Lookup reads the artifact addressed by key. Missing artifacts are
// reported as cdnerr.ErrNotFound.
func (h *QueryHandler) Lookup(ctx context.Context, key string) (transport.Value, error) {
	ref, err := h.ks.Classify(key)
	if err != nil {
		return transport.Value{}, err
	}

	if ref.IsChunk() {
		data, err := h.store.ReadChunk(ctx, ref.ResourceName, ref.Index)
		if err != nil {
			return transport.Value{}, fmt.Errorf("chunk %d of %q: %w", ref.Index, ref.ResourceName, err)
		}
		return transport.Binary(data), nil
	}

	data, err := h.store.ReadMetadata(ctx, ref.ResourceName)
	if err != nil {
		return transport.Value{}, fmt.Errorf("metadata of %q: %w", ref.ResourceName, err)
	}
	return transport.JSON(data), nil
}

// Handle answers q with at most one reply and always finishes it. When the
// artifact is missing no reply is sent.
func (h *QueryHandler) Handle(ctx context.Context, q *transport.Query) error {
	defer q.Finish()

	value, err := h.Lookup(ctx, q.Selector())
	if err != nil {
		return err
	}
	return q.Reply(q.Selector(), value)
}
