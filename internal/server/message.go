package server

import (
	"fmt"
	"strings"

	"github.com/prappser/prappser_cdn/internal/cdnerr"
	"github.com/prappser/prappser_cdn/internal/keyspace"
	"github.com/prappser/prappser_cdn/internal/metadata"
	"github.com/prappser/prappser_cdn/internal/transport"
)

// Message is a change notification decoded once at the transport boundary.
// It is one of *ChunkMessage, *MetadataMessage or *DeleteMessage.
type Message interface {
	Key() string
}

type ChunkMessage struct {
	key          string
	ResourceName string
	Index        uint64
	Data         []byte
}

func (m *ChunkMessage) Key() string { return m.key }

// MetadataMessage carries a validated record. KeyName is the resource name
// taken from the key; storage is sharded by Metadata.ResourceName.
type MetadataMessage struct {
	key      string
	KeyName  string
	Metadata *metadata.FileMetadata
	Raw      []byte
}

func (m *MetadataMessage) Key() string { return m.key }

type DeleteMessage struct {
	key string
}

func (m *DeleteMessage) Key() string { return m.key }

// Decode turns a change into a typed message. Binary payloads must sit at a
// chunk key. JSON and text payloads are parsed as metadata wherever they
// sit below the prefix, since a resource name ending in digits gives its
// metadata key a chunk shape.
func Decode(ks keyspace.KeySpace, change transport.Change) (Message, error) {
	if change.Kind == transport.ChangeDelete {
		return &DeleteMessage{key: change.Key}, nil
	}

	ref, err := ks.Classify(change.Key)
	if err != nil {
		return nil, err
	}

	switch change.Value.Encoding {
	case transport.EncodingBinary:
		if !ref.IsChunk() {
			return nil, fmt.Errorf("%w: binary payload at metadata key %q", cdnerr.ErrMalformedKey, change.Key)
		}
		return &ChunkMessage{
			key:          change.Key,
			ResourceName: ref.ResourceName,
			Index:        ref.Index,
			Data:         change.Value.Payload,
		}, nil

	case transport.EncodingJSON, transport.EncodingText:
		meta, err := metadata.Unmarshal(change.Value.Payload)
		if err != nil {
			return nil, err
		}
		return &MetadataMessage{
			key:      change.Key,
			KeyName:  strings.TrimPrefix(change.Key, ks.Prefix()),
			Metadata: meta,
			Raw:      change.Value.Payload,
		}, nil

	default:
		return nil, fmt.Errorf("%w: %s at %q", cdnerr.ErrUnsupportedEncoding, change.Value.Encoding, change.Key)
	}
}
