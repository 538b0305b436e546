package extract

import (
	"bytes"
	"context"
	"os"
	"strings"

	"github.com/docsearch-app/docsearch/internal/errors"
)

// textExtensions are the formats handled as plain text.
var textExtensions = []string{".txt", ".md", ".markdown", ".rst", ".log", ".csv"}

// TextExtractor reads plain-text files.
type TextExtractor struct{}

var _ Extractor = (*TextExtractor)(nil)

// NewTextExtractor creates a plain-text extractor.
func NewTextExtractor() *TextExtractor {
	return &TextExtractor{}
}

// Extensions returns the plain-text extensions.
func (e *TextExtractor) Extensions() []string {
	return textExtensions
}

// Extract reads the file and returns its content as valid UTF-8.
// Binary content (null bytes in the first 512 bytes) is rejected.
func (e *TextExtractor) Extract(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.New(errors.ErrCodeFileNotFound, "file not found: "+path, err)
		}
		return "", errors.ExtractionError(path, err)
	}

	probe := data
	if len(probe) > 512 {
		probe = probe[:512]
	}
	if bytes.ContainsRune(probe, 0) {
		return "", errors.New(errors.ErrCodeUnsupported, "binary content: "+path, nil)
	}

	// Strip UTF-8 BOM and repair any invalid sequences
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	return strings.ToValidUTF8(string(data), ""), nil
}
