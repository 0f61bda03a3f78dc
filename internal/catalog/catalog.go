// Package catalog indexes what the server has ingested: the latest metadata
// record per resource and which chunk indices have arrived. It is an index
// only; the shard store stays the source of truth for content.
package catalog

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/prappser/prappser_cdn/internal/cdnerr"
	"github.com/prappser/prappser_cdn/internal/metadata"
	"github.com/rs/zerolog/log"
	bolt "go.etcd.io/bbolt"
)

var (
	resourcesBucket = []byte("resources")
	chunksBucket    = []byte("chunks")
)

type record struct {
	Metadata  *metadata.FileMetadata `json:"metadata,omitempty"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// Entry is the catalog view of one resource.
type Entry struct {
	ResourceName   string                 `json:"resourceName"`
	Metadata       *metadata.FileMetadata `json:"metadata,omitempty"`
	ChunksReceived uint64                 `json:"chunksReceived"`
	BytesReceived  uint64                 `json:"bytesReceived"`
	Complete       bool                   `json:"complete"`
	UpdatedAt      time.Time              `json:"updatedAt"`
}

type Catalog struct {
	db  *bolt.DB
	now func() time.Time
}

func Open(path string) (*Catalog, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: opening catalog %s: %v", cdnerr.ErrIO, path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(resourcesBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(chunksBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: initializing catalog: %v", cdnerr.ErrIO, err)
	}

	log.Info().Str("path", path).Msg("[CATALOG] Opened")
	return &Catalog{db: db, now: time.Now}, nil
}

func indexKey(index uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, index)
	return key
}

func loadRecord(b *bolt.Bucket, name string) (*record, error) {
	var rec record
	data := b.Get([]byte(name))
	if data == nil {
		return &rec, nil
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decoding catalog record %q: %w", name, err)
	}
	return &rec, nil
}

func putRecord(b *bolt.Bucket, name string, rec *record) error {
	encoded, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return b.Put([]byte(name), encoded)
}

// RecordMetadata stores meta as the resource's current record, replacing any
// earlier one.
func (c *Catalog) RecordMetadata(meta *metadata.FileMetadata) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(resourcesBucket)
		rec, err := loadRecord(b, meta.ResourceName)
		if err != nil {
			return err
		}
		rec.Metadata = meta
		rec.UpdatedAt = c.now()
		return putRecord(b, meta.ResourceName, rec)
	})
}

// RecordChunk notes that chunk index of resourceName arrived with size bytes.
// Chunks usually arrive before the metadata record, so the resource entry is
// created on demand.
func (c *Catalog) RecordChunk(resourceName string, index uint64, size int) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		chunks, err := tx.Bucket(chunksBucket).CreateBucketIfNotExists([]byte(resourceName))
		if err != nil {
			return err
		}
		if err := chunks.Put(indexKey(index), indexKey(uint64(size))); err != nil {
			return err
		}

		b := tx.Bucket(resourcesBucket)
		rec, err := loadRecord(b, resourceName)
		if err != nil {
			return err
		}
		rec.UpdatedAt = c.now()
		return putRecord(b, resourceName, rec)
	})
}

func entryFor(tx *bolt.Tx, name string, rec *record) Entry {
	entry := Entry{
		ResourceName: name,
		Metadata:     rec.Metadata,
		UpdatedAt:    rec.UpdatedAt,
	}
	if chunks := tx.Bucket(chunksBucket).Bucket([]byte(name)); chunks != nil {
		cursor := chunks.Cursor()
		for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
			entry.ChunksReceived++
			entry.BytesReceived += binary.BigEndian.Uint64(v)
		}
	}
	entry.Complete = entry.Metadata != nil && entry.ChunksReceived >= entry.Metadata.Chunks
	return entry
}

func (c *Catalog) Get(resourceName string) (*Entry, error) {
	var entry Entry

	err := c.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(resourcesBucket).Get([]byte(resourceName))
		if data == nil {
			return fmt.Errorf("%w: resource %q", cdnerr.ErrNotFound, resourceName)
		}

		var rec record
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("decoding catalog record %q: %w", resourceName, err)
		}
		entry = entryFor(tx, resourceName, &rec)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &entry, nil
}

// List returns every known resource ordered by name.
func (c *Catalog) List() ([]Entry, error) {
	entries := []Entry{}

	err := c.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(resourcesBucket).ForEach(func(k, v []byte) error {
			var rec record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decoding catalog record %q: %w", k, err)
			}
			entries = append(entries, entryFor(tx, string(k), &rec))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return entries, nil
}

func (c *Catalog) Close() error {
	return c.db.Close()
}

// Count returns the number of known resources.
func (c *Catalog) Count() (int, error) {
	var n int
	err := c.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(resourcesBucket).Stats().KeyN
		return nil
	})
	return n, err
}
