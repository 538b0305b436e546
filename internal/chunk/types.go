// Package chunk defines the retrievable unit of content and the
// deterministic word-based splitter that produces it.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Chunking defaults.
const (
	// DefaultSize is the target chunk size in words.
	DefaultSize = 1000
	// DefaultOverlap is the number of words shared between adjacent chunks.
	DefaultOverlap = 200
	// MinContentLength is the minimum rejoined-text length in bytes.
	// Shorter fragments are discarded as noise.
	MinContentLength = 50
)

// Metadata describes where a chunk came from within its document.
// Offsets are word positions in the extracted text, not byte positions.
type Metadata struct {
	FilePath    string `json:"file_path"`
	FileName    string `json:"file_name"`
	ChunkIndex  int    `json:"chunk_index"`
	StartOffset int    `json:"start_offset"`
	EndOffset   int    `json:"end_offset"`
}

// Chunk is a retrievable unit of content.
type Chunk struct {
	// ChunkID is SHA256(document_id + ":" + start_offset)[:32].
	ChunkID string `json:"chunk_id"`
	// DocumentID identifies the source document snapshot.
	DocumentID string `json:"document_id"`
	// Content is the rejoined chunk text (words separated by single spaces).
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
}

// DocumentID derives a document identity from path, modification time, and
// size. Any edit that touches mtime or size yields a new identity, so stale
// chunks can never be confused with current ones.
func DocumentID(path string, mtime time.Time, size int64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%d", path, mtime.UnixNano(), size)))
	return hex.EncodeToString(sum[:])[:32]
}

// ChunkID derives a chunk identity from its document and start offset.
// Deterministic: the same document split the same way yields the same IDs.
func ChunkID(documentID string, startOffset int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", documentID, startOffset)))
	return hex.EncodeToString(sum[:])[:32]
}
