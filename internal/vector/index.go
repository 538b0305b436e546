package vector

import (
	"sort"
	"sync"
	"time"

	"github.com/viterin/vek/vek32"

	"github.com/docsearch-app/docsearch/internal/chunk"
	"github.com/docsearch-app/docsearch/internal/errors"
)

// Index holds vectors and their chunk payloads in parallel slices.
// Position i in vectors always corresponds to chunks[i]; the catalog's
// vector_index column points at these positions, so they must stay dense.
type Index struct {
	mu sync.RWMutex

	dim     int
	typ     Type
	vectors [][]float32
	chunks  []chunk.Chunk
	// docChunks counts live chunks per document ID.
	docChunks map[string]int

	createdAt time.Time
	updatedAt time.Time

	// Trained-variant state.
	trained     bool
	nlist       int
	nprobe      int
	centroids   [][]float32
	assignments []int // cluster per vector, parallel to vectors
}

// New creates an empty index of the given dimensionality and type.
func New(dim int, typ Type) *Index {
	if typ == "" {
		typ = TypeFlat
	}
	return &Index{
		dim:       dim,
		typ:       typ,
		docChunks: make(map[string]int),
		nprobe:    DefaultNprobe,
		createdAt: time.Now(),
		updatedAt: time.Now(),
	}
}

// Dimensions returns the vector width.
func (idx *Index) Dimensions() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.dim
}

// Count returns the number of stored vectors.
func (idx *Index) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.vectors)
}

// ContainsDocument reports whether any chunk of the document is indexed.
func (idx *Index) ContainsDocument(documentID string) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.docChunks[documentID] > 0
}

// Train fits nlist centroids to the sample vectors via k-means.
// Only meaningful for TypeTrained; a flat index accepts and ignores it.
func (idx *Index) Train(samples [][]float32) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.typ != TypeTrained {
		return nil
	}
	if len(samples) == 0 {
		return errors.ValidationError("cannot train on empty sample set", nil)
	}
	for _, s := range samples {
		if len(s) != idx.dim {
			return errors.DimensionMismatch(idx.dim, len(s))
		}
	}

	nlist := DefaultNlist
	if len(samples) < nlist {
		nlist = len(samples)
	}

	idx.centroids = kmeans(samples, nlist, kmeansIterations)
	idx.nlist = len(idx.centroids)
	idx.nprobe = DefaultNprobe
	if idx.nprobe > idx.nlist {
		idx.nprobe = idx.nlist
	}
	idx.trained = true
	idx.updatedAt = time.Now()
	return nil
}

// Insert appends chunks with their vectors. The two slices run parallel.
// Positions are assigned densely starting at the current count; the
// caller reads Count() before inserting to learn the base offset.
func (idx *Index) Insert(chunks []chunk.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return errors.ValidationError("chunks and vectors length mismatch", nil)
	}
	if len(chunks) == 0 {
		return nil
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.typ == TypeTrained && !idx.trained {
		return ErrUntrained
	}
	for _, v := range vectors {
		if len(v) != idx.dim {
			return errors.DimensionMismatch(idx.dim, len(v))
		}
	}

	for i := range chunks {
		idx.vectors = append(idx.vectors, vectors[i])
		idx.chunks = append(idx.chunks, chunks[i])
		idx.docChunks[chunks[i].DocumentID]++
		if idx.trained {
			idx.assignments = append(idx.assignments, nearestCentroid(vectors[i], idx.centroids))
		}
	}

	idx.updatedAt = time.Now()
	return nil
}

// Search returns the k nearest chunks to the query by squared L2
// distance, best first. k is clamped to the vector count; an empty index
// yields an empty result, not an error.
func (idx *Index) Search(query []float32, k int) ([]Result, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(idx.vectors) == 0 {
		return []Result{}, nil
	}
	if len(query) != idx.dim {
		return nil, errors.DimensionMismatch(idx.dim, len(query))
	}
	if idx.typ == TypeTrained && !idx.trained {
		return nil, ErrUntrained
	}

	if k <= 0 {
		k = 10
	}
	if k > len(idx.vectors) {
		k = len(idx.vectors)
	}

	var candidates []int
	if idx.trained {
		candidates = idx.probeLists(query)
	} else {
		candidates = make([]int, len(idx.vectors))
		for i := range candidates {
			candidates[i] = i
		}
	}

	results := make([]Result, 0, len(candidates))
	for _, pos := range candidates {
		d := vek32.Distance(query, idx.vectors[pos])
		d2 := d * d
		results = append(results, Result{
			Chunk:    idx.chunks[pos],
			Position: pos,
			Distance: d2,
			Score:    1.0 / (1.0 + d2),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].Position < results[j].Position
	})

	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

// probeLists returns candidate positions from the nprobe nearest clusters.
func (idx *Index) probeLists(query []float32) []int {
	type centroidDist struct {
		list int
		dist float32
	}
	dists := make([]centroidDist, len(idx.centroids))
	for i, c := range idx.centroids {
		dists[i] = centroidDist{list: i, dist: vek32.Distance(query, c)}
	}
	sort.Slice(dists, func(i, j int) bool { return dists[i].dist < dists[j].dist })

	probe := make(map[int]bool, idx.nprobe)
	for i := 0; i < idx.nprobe && i < len(dists); i++ {
		probe[dists[i].list] = true
	}

	var candidates []int
	for pos, list := range idx.assignments {
		if probe[list] {
			candidates = append(candidates, pos)
		}
	}
	return candidates
}

// RemoveDocument drops every chunk of a document and rebuilds the
// positional arrays in their original relative order. Returns the
// chunkID-to-new-position mapping for the survivors, and whether the
// document was present.
func (idx *Index) RemoveDocument(documentID string) (map[string]int, bool) {
	return idx.RemoveDocuments([]string{documentID})
}

// RemoveDocuments drops every chunk of the given documents in a single
// rebuild, so removing m documents costs one O(n) pass instead of m.
// Unknown document IDs are ignored; the mapping covers the survivors.
// The rebuild is O(n) by design: removals are rare next to searches,
// and the dense positions invariant is worth the rebuild.
func (idx *Index) RemoveDocuments(documentIDs []string) (map[string]int, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	drop := make(map[string]bool, len(documentIDs))
	for _, id := range documentIDs {
		if idx.docChunks[id] > 0 {
			drop[id] = true
		}
	}
	if len(drop) == 0 {
		return nil, false
	}

	newVectors := make([][]float32, 0, len(idx.vectors))
	newChunks := make([]chunk.Chunk, 0, len(idx.chunks))
	var newAssignments []int
	mapping := make(map[string]int)

	for i, c := range idx.chunks {
		if drop[c.DocumentID] {
			continue
		}
		mapping[c.ChunkID] = len(newChunks)
		newVectors = append(newVectors, idx.vectors[i])
		newChunks = append(newChunks, c)
		if idx.trained {
			newAssignments = append(newAssignments, idx.assignments[i])
		}
	}

	idx.vectors = newVectors
	idx.chunks = newChunks
	idx.assignments = newAssignments
	for id := range drop {
		delete(idx.docChunks, id)
	}
	idx.updatedAt = time.Now()

	return mapping, true
}

// Reconstruct returns a copy of the vector at position i.
func (idx *Index) Reconstruct(i int) ([]float32, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if i < 0 || i >= len(idx.vectors) {
		return nil, errors.ValidationError("vector position out of range", nil)
	}
	out := make([]float32, idx.dim)
	copy(out, idx.vectors[i])
	return out, nil
}

// ChunkAt returns the chunk at position i.
func (idx *Index) ChunkAt(i int) (chunk.Chunk, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if i < 0 || i >= len(idx.chunks) {
		return chunk.Chunk{}, errors.ValidationError("chunk position out of range", nil)
	}
	return idx.chunks[i], nil
}

// Clear resets the index to empty, keeping dimension and type.
func (idx *Index) Clear() {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.vectors = nil
	idx.chunks = nil
	idx.assignments = nil
	idx.centroids = nil
	idx.trained = false
	idx.docChunks = make(map[string]int)
	idx.createdAt = time.Now()
	idx.updatedAt = time.Now()
}

// Stats returns a snapshot of the index counters.
func (idx *Index) Stats() Stats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return Stats{
		TotalDocuments: len(idx.docChunks),
		TotalChunks:    len(idx.chunks),
		Dimensions:     idx.dim,
		IndexType:      idx.typ,
		CreatedAt:      idx.createdAt,
		UpdatedAt:      idx.updatedAt,
	}
}
