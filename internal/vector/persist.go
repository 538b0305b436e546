package vector

import (
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/docsearch-app/docsearch/internal/chunk"
	"github.com/docsearch-app/docsearch/internal/errors"
)

// Artifact file names within the index directory.
const (
	VectorsFile = "vectors.gob"
	ChunksFile  = "chunks.gob"
	MetaFile    = "index_meta.json"
)

// vectorsPayload is the gob layout of the vector artifact.
type vectorsPayload struct {
	Vectors     [][]float32
	Trained     bool
	Centroids   [][]float32
	Assignments []int
}

// indexMeta is the JSON layout of the metadata artifact.
type indexMeta struct {
	Dimensions     int       `json:"embedding_dim"`
	IndexType      Type      `json:"index_type"`
	Nlist          int       `json:"nlist,omitempty"`
	Nprobe         int       `json:"nprobe,omitempty"`
	TotalDocuments int       `json:"total_documents"`
	TotalChunks    int       `json:"total_chunks"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"last_updated"`
}

// Save writes the three index artifacts into dir, each atomically via a
// temp file and rename.
func (idx *Index) Save(dir string) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}

	payload := vectorsPayload{
		Vectors:     idx.vectors,
		Trained:     idx.trained,
		Centroids:   idx.centroids,
		Assignments: idx.assignments,
	}
	if err := writeGob(filepath.Join(dir, VectorsFile), payload); err != nil {
		return fmt.Errorf("failed to save vectors: %w", err)
	}

	if err := writeGob(filepath.Join(dir, ChunksFile), idx.chunks); err != nil {
		return fmt.Errorf("failed to save chunks: %w", err)
	}

	meta := indexMeta{
		Dimensions:     idx.dim,
		IndexType:      idx.typ,
		Nlist:          idx.nlist,
		Nprobe:         idx.nprobe,
		TotalDocuments: len(idx.docChunks),
		TotalChunks:    len(idx.chunks),
		CreatedAt:      idx.createdAt,
		UpdatedAt:      idx.updatedAt,
	}
	if err := writeJSON(filepath.Join(dir, MetaFile), meta); err != nil {
		return fmt.Errorf("failed to save index metadata: %w", err)
	}

	return nil
}

// Load reads the index artifacts from dir. Returns fs.ErrNotExist (via
// os.Open) when no index has been saved yet. A vector/chunk count
// mismatch means torn artifacts and is rejected as corruption.
func Load(dir string) (*Index, error) {
	var payload vectorsPayload
	if err := readGob(filepath.Join(dir, VectorsFile), &payload); err != nil {
		return nil, err
	}

	var chunks []chunk.Chunk
	if err := readGob(filepath.Join(dir, ChunksFile), &chunks); err != nil {
		return nil, err
	}

	var meta indexMeta
	metaData, err := os.ReadFile(filepath.Join(dir, MetaFile))
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(metaData, &meta); err != nil {
		return nil, errors.New(errors.ErrCodeCorruptIndex, "unreadable index metadata", err)
	}

	if len(payload.Vectors) != len(chunks) {
		return nil, errors.New(errors.ErrCodeCorruptIndex,
			fmt.Sprintf("vector/chunk count mismatch: %d vectors, %d chunks",
				len(payload.Vectors), len(chunks)), nil)
	}
	for _, v := range payload.Vectors {
		if len(v) != meta.Dimensions {
			return nil, errors.New(errors.ErrCodeCorruptIndex,
				fmt.Sprintf("stored vector width %d does not match dimension %d",
					len(v), meta.Dimensions), nil)
		}
	}

	idx := New(meta.Dimensions, meta.IndexType)
	idx.vectors = payload.Vectors
	idx.chunks = chunks
	idx.trained = payload.Trained
	idx.centroids = payload.Centroids
	idx.assignments = payload.Assignments
	idx.nlist = meta.Nlist
	if meta.Nprobe > 0 {
		idx.nprobe = meta.Nprobe
	}
	idx.createdAt = meta.CreatedAt
	idx.updatedAt = meta.UpdatedAt

	for _, c := range chunks {
		idx.docChunks[c.DocumentID]++
	}

	return idx, nil
}

// ClearDir removes the index artifacts from dir.
func ClearDir(dir string) error {
	for _, name := range []string{VectorsFile, ChunksFile, MetaFile} {
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w", name, err)
		}
	}
	return nil
}

// writeGob encodes v to path atomically.
func writeGob(path string, v any) error {
	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return err
	}

	if err := gob.NewEncoder(file).Encode(v); err != nil {
		_ = file.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}

	return os.Rename(tmp, path)
}

// readGob decodes path into v.
func readGob(path string, v any) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := gob.NewDecoder(file).Decode(v); err != nil {
		return errors.New(errors.ErrCodeCorruptIndex, "unreadable index artifact: "+path, err)
	}
	return nil
}

// writeJSON encodes v to path atomically.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
