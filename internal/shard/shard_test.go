package shard

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDigest_ShouldBeStableAndFixedWidth(t *testing.T) {
	// given
	short := "a"
	long := "very/long/resource/name/with/many/segments/and-a-file-name.tar.gz"

	// when
	d1 := Digest(short)
	d2 := Digest(short)
	d3 := Digest(long)

	// then
	assert.Equal(t, d1, d2)
	assert.Len(t, d1, 64)
	assert.Len(t, d3, 64)
	assert.NotEqual(t, d1, d3)
}

func TestDigest_ShouldMatchKnownVector(t *testing.T) {
	// when
	d := Digest("abc")

	// then
	assert.Equal(t, "BA7816BF8F01CFEA414140DE5DAE2223B00361A396177A9CB410FF61F20015AD", d)
}

func TestLayout_ShouldPlaceArtifactsInShardDirectory(t *testing.T) {
	// given
	var layout Layout
	dir := Digest("videos/intro.mp4")

	// then
	assert.Equal(t, dir, layout.Dir("videos/intro.mp4"))
	assert.Equal(t, dir+"/3", layout.ChunkPath("videos/intro.mp4", 3))
	assert.Equal(t, dir+"/metadata", layout.MetadataPath("videos/intro.mp4"))
}
