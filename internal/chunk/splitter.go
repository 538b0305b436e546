package chunk

import (
	"path/filepath"
	"strings"
)

// Splitter produces overlapping word-window chunks from extracted text.
// The zero value is not usable; construct with NewSplitter.
type Splitter struct {
	size    int
	overlap int
}

// NewSplitter creates a splitter with the given window size and overlap,
// both in words. Invalid values fall back to the defaults.
func NewSplitter(size, overlap int) *Splitter {
	if size <= 0 {
		size = DefaultSize
	}
	if overlap < 0 || overlap >= size {
		overlap = DefaultOverlap
		if overlap >= size {
			overlap = size / 5
		}
	}
	return &Splitter{size: size, overlap: overlap}
}

// Split tokenizes text on whitespace and emits windows of s.size words
// advancing by s.size-s.overlap. Adjacent chunks share exactly s.overlap
// words except possibly the final chunk, which may be shorter. Rejoined
// fragments below MinContentLength are skipped; skipped windows do not
// consume a chunk index.
func (s *Splitter) Split(text, path, documentID string) []Chunk {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	step := s.size - s.overlap
	var chunks []Chunk

	for i := 0; i < len(words); i += step {
		end := i + s.size
		if end > len(words) {
			end = len(words)
		}

		content := strings.Join(words[i:end], " ")
		if len(strings.TrimSpace(content)) < MinContentLength {
			continue
		}

		chunks = append(chunks, Chunk{
			ChunkID:    ChunkID(documentID, i),
			DocumentID: documentID,
			Content:    content,
			Metadata: Metadata{
				FilePath:    path,
				FileName:    filepath.Base(path),
				ChunkIndex:  len(chunks),
				StartOffset: i,
				EndOffset:   end,
			},
		})
	}

	return chunks
}
