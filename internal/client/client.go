// Package client uploads files into the resource space as chunks plus a
// metadata record and reassembles them on download.
//
// Upload and Download run sequentially and stop at the first error. A
// failed upload leaves the chunks already published in place.
package client

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/prappser/prappser_cdn/internal/cdnerr"
	"github.com/prappser/prappser_cdn/internal/chunkio"
	"github.com/prappser/prappser_cdn/internal/keyspace"
	"github.com/prappser/prappser_cdn/internal/metadata"
	"github.com/prappser/prappser_cdn/internal/transport"
	"github.com/rs/zerolog/log"
)

type Config struct {
	ChunkSize      uint64
	VerifyChecksum bool
}

type Client struct {
	session   transport.Session
	ks        keyspace.KeySpace
	chunkSize uint64
	verify    bool
}

func New(session transport.Session, ks keyspace.KeySpace, cfg Config) *Client {
	chunkSize := cfg.ChunkSize
	if chunkSize == 0 {
		chunkSize = metadata.DefaultChunkSize
	}
	return &Client{
		session:   session,
		ks:        ks,
		chunkSize: chunkSize,
		verify:    cfg.VerifyChecksum,
	}
}

func baseName(p string) (string, error) {
	if p == "" || strings.HasSuffix(p, string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q has no file name", cdnerr.ErrInvalidPath, p)
	}
	name := filepath.Base(p)
	if name == "." || name == ".." || name == string(filepath.Separator) {
		return "", fmt.Errorf("%w: %q has no file name", cdnerr.ErrInvalidPath, p)
	}
	return name, nil
}

// Upload publishes every chunk of filePath and then its metadata record, and
// returns the metadata key. The metadata goes last so that its presence
// means the chunks were all published.
func (c *Client) Upload(ctx context.Context, filePath, resourceName string) (string, error) {
	filename, err := baseName(filePath)
	if err != nil {
		return "", err
	}
	if resourceName == "" {
		return "", fmt.Errorf("%w: empty resource name", cdnerr.ErrInvalidPath)
	}

	checksum, err := chunkio.Checksum(filePath)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(filePath)
	if err != nil {
		return "", fmt.Errorf("%w: stat %s: %v", cdnerr.ErrIO, filePath, err)
	}

	meta := metadata.New(filename, checksum, resourceName, uint64(info.Size()), c.chunkSize)

	log.Info().
		Str("resource", resourceName).
		Str("file", filePath).
		Uint64("size", meta.Size).
		Uint64("chunks", meta.Chunks).
		Msg("[CLIENT] Uploading")

	for i := uint64(0); i < meta.Chunks; i++ {
		data, err := chunkio.ReadChunk(filePath, i, c.chunkSize)
		if err != nil {
			return "", err
		}
		key := c.ks.ChunkKey(resourceName, i)
		if err := c.session.Put(ctx, key, transport.Binary(data)); err != nil {
			return "", fmt.Errorf("publishing chunk %d: %w", i, err)
		}
		log.Debug().Str("key", key).Int("bytes", len(data)).Msg("[CLIENT] Chunk published")
	}

	payload, err := meta.Marshal()
	if err != nil {
		return "", err
	}
	key := c.ks.MetadataKey(resourceName)
	if err := c.session.Put(ctx, key, transport.JSON(payload)); err != nil {
		return "", fmt.Errorf("publishing metadata: %w", err)
	}

	log.Info().Str("key", key).Msg("[CLIENT] Upload committed")
	return key, nil
}

// single queries selector and requires exactly one reply.
func (c *Client) single(ctx context.Context, selector string) (transport.Value, error) {
	replies, err := c.session.Get(ctx, selector)
	if err != nil {
		return transport.Value{}, fmt.Errorf("querying %s: %w", selector, err)
	}
	switch len(replies) {
	case 0:
		return transport.Value{}, fmt.Errorf("%w: %s", cdnerr.ErrNotFound, selector)
	case 1:
		return replies[0].Value, nil
	default:
		return transport.Value{}, fmt.Errorf("%w: %d replies for %s", cdnerr.ErrAmbiguousResult, len(replies), selector)
	}
}

// Stat fetches and validates the metadata record of resourceName.
func (c *Client) Stat(ctx context.Context, resourceName string) (*metadata.FileMetadata, error) {
	value, err := c.single(ctx, c.ks.MetadataKey(resourceName))
	if err != nil {
		return nil, err
	}
	if value.Encoding != transport.EncodingJSON && value.Encoding != transport.EncodingText {
		return nil, fmt.Errorf("%w: metadata of %q tagged %s", cdnerr.ErrMalformedMetadata, resourceName, value.Encoding)
	}
	return metadata.Unmarshal(value.Payload)
}

// Download reassembles resourceName into destinationPath and returns the
// path. With checksum verification enabled the result is compared against
// the record's checksum.
func (c *Client) Download(ctx context.Context, resourceName, destinationPath string) (string, error) {
	if _, err := baseName(destinationPath); err != nil {
		return "", err
	}

	meta, err := c.Stat(ctx, resourceName)
	if err != nil {
		return "", err
	}

	log.Info().
		Str("resource", resourceName).
		Str("destination", destinationPath).
		Uint64("size", meta.Size).
		Uint64("chunks", meta.Chunks).
		Msg("[CLIENT] Downloading")

	if err := c.fetchChunks(ctx, resourceName, destinationPath, meta); err != nil {
		return "", err
	}

	if c.verify {
		if err := verifyChecksum(destinationPath, meta); err != nil {
			return "", err
		}
	}

	log.Info().Str("resource", resourceName).Str("destination", destinationPath).Msg("[CLIENT] Download complete")
	return destinationPath, nil
}

func (c *Client) fetchChunks(ctx context.Context, resourceName, destinationPath string, meta *metadata.FileMetadata) error {
	f, err := chunkio.AllocateDestination(destinationPath, meta.Size)
	if err != nil {
		return err
	}
	defer f.Close()

	for i := uint64(0); i < meta.Chunks; i++ {
		key := c.ks.ChunkKey(resourceName, i)
		value, err := c.single(ctx, key)
		if err != nil {
			return err
		}
		if value.Encoding != transport.EncodingBinary {
			return fmt.Errorf("%w: chunk %d tagged %s", cdnerr.ErrUnsupportedEncoding, i, value.Encoding)
		}
		if err := chunkio.WriteChunkAt(f, i, meta.ChunkSize, value.Payload); err != nil {
			return err
		}
		log.Debug().Str("key", key).Int("bytes", len(value.Payload)).Msg("[CLIENT] Chunk written")
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: closing %s: %v", cdnerr.ErrIO, destinationPath, err)
	}
	return nil
}

func verifyChecksum(path string, meta *metadata.FileMetadata) error {
	if meta.Checksum == "" {
		log.Warn().Str("resource", meta.ResourceName).Msg("[CLIENT] Metadata has no checksum, skipping verification")
		return nil
	}
	sum, err := chunkio.Checksum(path)
	if err != nil {
		return err
	}
	if !strings.EqualFold(sum, meta.Checksum) {
		return fmt.Errorf("%w: %s has %s, expected %s", cdnerr.ErrChecksumMismatch, path, sum, meta.Checksum)
	}
	return nil
}
