// Package shard names the on-disk directories that hold a resource's chunks
// and metadata. Directory names are SHA-256 digests of the resource name so
// that arbitrary names (slashes included) map to flat, fixed-width paths.
package shard

import (
	"crypto/sha256"
	"encoding/hex"
	"path"
	"strconv"
	"strings"
)

const MetadataFile = "metadata"

// Digest returns the upper-case hex SHA-256 of name. The output is part of
// the persisted layout and must never change.
func Digest(name string) string {
	sum := sha256.Sum256([]byte(name))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// Layout computes slash-separated paths relative to the chunks directory.
// Storage backends join them with their own base.
type Layout struct{}

func (Layout) Dir(resourceName string) string {
	return Digest(resourceName)
}

func (l Layout) ChunkPath(resourceName string, index uint64) string {
	return path.Join(l.Dir(resourceName), strconv.FormatUint(index, 10))
}

func (l Layout) MetadataPath(resourceName string) string {
	return path.Join(l.Dir(resourceName), MetadataFile)
}
