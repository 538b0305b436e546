package extract

import (
	"path/filepath"
	"strings"
)

// bareNames are extension-less files treated as plain text.
var bareNames = map[string]bool{
	"README":     true,
	"LICENSE":    true,
	"Makefile":   true,
	"CHANGELOG":  true,
	"Dockerfile": true,
}

// Registry maps file extensions to extractors.
type Registry struct {
	byExt    map[string]Extractor
	fallback Extractor
}

// NewRegistry creates a registry with the default plain-text extractor
// registered for all text extensions and bare documentation names.
func NewRegistry() *Registry {
	r := &Registry{byExt: make(map[string]Extractor)}
	text := NewTextExtractor()
	r.Register(text)
	r.fallback = text
	return r
}

// Register adds an extractor for each of its declared extensions.
// Later registrations for the same extension win.
func (r *Registry) Register(e Extractor) {
	for _, ext := range e.Extensions() {
		r.byExt[strings.ToLower(ext)] = e
	}
}

// For returns the extractor for the given path, or nil when the format
// is not supported.
func (r *Registry) For(path string) Extractor {
	base := filepath.Base(path)
	ext := strings.ToLower(filepath.Ext(base))

	if ext == "" {
		if bareNames[base] {
			return r.fallback
		}
		return nil
	}

	return r.byExt[ext]
}

// Supported reports whether the path has a registered extractor.
func (r *Registry) Supported(path string) bool {
	return r.For(path) != nil
}
