// Package chunkio reads and writes fixed-size byte ranges of files.
package chunkio

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/prappser/prappser_cdn/internal/cdnerr"
)

// ReadChunk returns chunk index of the file at path. A chunk starting exactly
// at the end of the file is empty; one starting past the end is out of range.
func ReadChunk(path string, index, chunkSize uint64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", cdnerr.ErrIO, path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: stat %s: %v", cdnerr.ErrIO, path, err)
	}
	fileSize := uint64(info.Size())

	offset := index * chunkSize
	if offset > fileSize {
		return nil, fmt.Errorf("%w: chunk %d starts at %d, file %s has %d bytes", cdnerr.ErrChunkOutOfRange, index, offset, path, fileSize)
	}

	buf := make([]byte, min(chunkSize, fileSize-offset))
	if _, err := f.ReadAt(buf, int64(offset)); err != nil && !(err == io.EOF && len(buf) == 0) {
		return nil, fmt.Errorf("%w: read chunk %d of %s: %v", cdnerr.ErrIO, index, path, err)
	}
	return buf, nil
}

// AllocateDestination creates or truncates path and extends it to size bytes
// so chunks can be written at their offsets in any order.
func AllocateDestination(path string, size uint64) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: create %s: %v", cdnerr.ErrIO, path, err)
	}
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: allocate %d bytes in %s: %v", cdnerr.ErrIO, size, path, err)
	}
	return f, nil
}

// WriteChunkAt writes data at index*chunkSize. Writes to distinct indices do
// not overlap, but concurrent calls for the same index on one handle race.
func WriteChunkAt(f *os.File, index, chunkSize uint64, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("%w: stat %s: %v", cdnerr.ErrIO, f.Name(), err)
	}

	offset := index * chunkSize
	if offset+uint64(len(data)) > uint64(info.Size()) {
		return fmt.Errorf("%w: chunk %d (%d bytes at %d) exceeds %d-byte destination", cdnerr.ErrChunkOutOfRange, index, len(data), offset, info.Size())
	}
	if _, err := f.WriteAt(data, int64(offset)); err != nil {
		return fmt.Errorf("%w: write chunk %d to %s: %v", cdnerr.ErrIO, index, f.Name(), err)
	}
	return nil
}

// Checksum returns the lower-case hex MD5 of the file's content.
func Checksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: open %s: %v", cdnerr.ErrIO, path, err)
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("%w: hash %s: %v", cdnerr.ErrIO, path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
