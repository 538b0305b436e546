package chunk

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// words generates n distinct words for window assertions.
func words(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("word%04d", i)
	}
	return out
}

func TestSplitter_Split_WindowStepAndOverlap(t *testing.T) {
	splitter := NewSplitter(100, 20)
	text := strings.Join(words(250), " ")

	chunks := splitter.Split(text, "/docs/a.txt", "doc-1")

	// step = 80: windows start at 0, 80, 160, 240
	require.Len(t, chunks, 4)

	assert.Equal(t, 0, chunks[0].Metadata.StartOffset)
	assert.Equal(t, 100, chunks[0].Metadata.EndOffset)
	assert.Equal(t, 80, chunks[1].Metadata.StartOffset)
	assert.Equal(t, 180, chunks[1].Metadata.EndOffset)
	assert.Equal(t, 160, chunks[2].Metadata.StartOffset)
	assert.Equal(t, 240, chunks[2].Metadata.StartOffset+80)

	// Final chunk is truncated at the word count
	last := chunks[len(chunks)-1]
	assert.Equal(t, 240, last.Metadata.StartOffset)
	assert.Equal(t, 250, last.Metadata.EndOffset)

	// Adjacent chunks share exactly overlap words
	first := strings.Fields(chunks[0].Content)
	second := strings.Fields(chunks[1].Content)
	assert.Equal(t, first[80:], second[:20])
}

func TestSplitter_Split_Deterministic(t *testing.T) {
	splitter := NewSplitter(50, 10)
	text := strings.Join(words(300), " ")

	a := splitter.Split(text, "/docs/a.txt", "doc-1")
	b := splitter.Split(text, "/docs/a.txt", "doc-1")

	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.Equal(t, a[i].ChunkID, b[i].ChunkID)
		assert.Equal(t, a[i].Content, b[i].Content)
	}
}

func TestSplitter_Split_FullCoverage(t *testing.T) {
	splitter := NewSplitter(100, 20)
	all := words(777)
	text := strings.Join(all, " ")

	chunks := splitter.Split(text, "/docs/a.txt", "doc-1")
	require.NotEmpty(t, chunks)

	// Every word index must be covered by at least one window
	covered := make([]bool, len(all))
	for _, c := range chunks {
		for i := c.Metadata.StartOffset; i < c.Metadata.EndOffset; i++ {
			covered[i] = true
		}
	}
	for i, ok := range covered {
		require.True(t, ok, "word %d not covered by any chunk", i)
	}
}

func TestSplitter_Split_SkipsShortFragments(t *testing.T) {
	splitter := NewSplitter(10, 2)

	// Final window rejoins to fewer than MinContentLength bytes
	text := strings.Join(words(10), " ") + " tail"

	chunks := splitter.Split(text, "/docs/a.txt", "doc-1")
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Metadata.StartOffset)

	// Chunk indices stay dense even when windows are skipped
	assert.Equal(t, 0, chunks[0].Metadata.ChunkIndex)
}

func TestSplitter_Split_EmptyAndWhitespaceOnly(t *testing.T) {
	splitter := NewSplitter(100, 20)

	assert.Nil(t, splitter.Split("", "/docs/a.txt", "doc-1"))
	assert.Nil(t, splitter.Split("   \n\t  ", "/docs/a.txt", "doc-1"))
}

func TestSplitter_Split_SingleWindow(t *testing.T) {
	splitter := NewSplitter(1000, 200)
	text := strings.Join(words(90), " ")

	chunks := splitter.Split(text, "/docs/readme.md", "doc-2")
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Metadata.StartOffset)
	assert.Equal(t, 90, chunks[0].Metadata.EndOffset)
	assert.Equal(t, "readme.md", chunks[0].Metadata.FileName)
	assert.Equal(t, "/docs/readme.md", chunks[0].Metadata.FilePath)
}

func TestDocumentID_ChangesWithMtimeAndSize(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	id1 := DocumentID("/docs/a.txt", base, 100)
	id2 := DocumentID("/docs/a.txt", base.Add(time.Second), 100)
	id3 := DocumentID("/docs/a.txt", base, 101)
	id4 := DocumentID("/docs/b.txt", base, 100)

	assert.Len(t, id1, 32)
	assert.NotEqual(t, id1, id2, "mtime change must produce a new identity")
	assert.NotEqual(t, id1, id3, "size change must produce a new identity")
	assert.NotEqual(t, id1, id4, "path change must produce a new identity")

	// Stable for identical inputs
	assert.Equal(t, id1, DocumentID("/docs/a.txt", base, 100))
}

func TestChunkID_DerivedFromDocumentAndOffset(t *testing.T) {
	a := ChunkID("doc-1", 0)
	b := ChunkID("doc-1", 80)
	c := ChunkID("doc-2", 0)

	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, a, ChunkID("doc-1", 0))
}
