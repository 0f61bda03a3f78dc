// Package keyspace maps resources and chunk indices onto the flat key
// namespace shared by chunk data and metadata records.
//
// Keys have two shapes:
//
//	<root>/files/<resourceName>          metadata record
//	<root>/files/<resourceName>/<index>  chunk <index>
//
// The resource name is opaque and may contain '/'. A key is classified as a
// chunk when its last segment parses as a non-negative decimal integer. A
// resource whose own last segment is all digits is therefore ambiguous: its
// metadata key reads as a chunk key of the parent name. This is a known
// limitation of the key format and is not corrected here.
package keyspace

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/prappser/prappser_cdn/internal/cdnerr"
)

const (
	DefaultRoot = "/cdn"
	FilesKey    = "files"
	Separator   = "/"
	wildcard    = "**"
)

type RefKind int

const (
	RefMetadata RefKind = iota
	RefChunk
)

func (k RefKind) String() string {
	switch k {
	case RefChunk:
		return "chunk"
	default:
		return "metadata"
	}
}

// Ref is the result of classifying a key. Index is meaningful only for
// RefChunk.
type Ref struct {
	Kind         RefKind
	ResourceName string
	Index        uint64
}

func (r Ref) IsChunk() bool {
	return r.Kind == RefChunk
}

// KeySpace is built once from the configured root and passed to every
// component that builds or parses keys.
type KeySpace struct {
	root   string
	prefix string
}

func New(root string) KeySpace {
	root = strings.TrimSuffix(root, Separator)
	return KeySpace{
		root:   root,
		prefix: root + Separator + FilesKey + Separator,
	}
}

// FromResourceSpace derives the key space from a subscription pattern.
// Both "<root>/**" and "<root>/files/**" are accepted.
func FromResourceSpace(space string) (KeySpace, error) {
	root := strings.TrimSuffix(space, Separator+wildcard)
	if root == space {
		return KeySpace{}, fmt.Errorf("%w: resource space %q must end with /%s", cdnerr.ErrMalformedKey, space, wildcard)
	}
	root = strings.TrimSuffix(root, Separator+FilesKey)
	if root == "" || strings.Contains(root, "*") {
		return KeySpace{}, fmt.Errorf("%w: resource space %q has no concrete root", cdnerr.ErrMalformedKey, space)
	}
	return New(root), nil
}

func (ks KeySpace) Root() string {
	return ks.root
}

// Prefix returns "<root>/files/".
func (ks KeySpace) Prefix() string {
	return ks.prefix
}

// Pattern returns the key expression matching every chunk and metadata key.
func (ks KeySpace) Pattern() string {
	return ks.prefix + wildcard
}

func (ks KeySpace) ChunkKey(resourceName string, index uint64) string {
	return ks.prefix + resourceName + Separator + strconv.FormatUint(index, 10)
}

func (ks KeySpace) MetadataKey(resourceName string) string {
	return ks.prefix + resourceName
}

// Classify decides whether key addresses a chunk or a metadata record.
func (ks KeySpace) Classify(key string) (Ref, error) {
	rest, ok := strings.CutPrefix(key, ks.prefix)
	if !ok {
		return Ref{}, fmt.Errorf("%w: %q is outside %q", cdnerr.ErrMalformedKey, key, ks.prefix)
	}
	if rest == "" {
		return Ref{}, fmt.Errorf("%w: %q has no resource name", cdnerr.ErrMalformedKey, key)
	}

	i := strings.LastIndex(rest, Separator)
	if i <= 0 {
		return Ref{Kind: RefMetadata, ResourceName: rest}, nil
	}

	index, err := strconv.ParseUint(rest[i+1:], 10, 64)
	if err != nil {
		return Ref{Kind: RefMetadata, ResourceName: rest}, nil
	}
	return Ref{Kind: RefChunk, ResourceName: rest[:i], Index: index}, nil
}
