package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docsearch-app/docsearch/internal/config"
	"github.com/docsearch-app/docsearch/internal/embed"
)

// countingEmbedder tracks how many texts get embedded, to prove the
// incremental no-op path really skips embedding.
type countingEmbedder struct {
	*embed.StaticEmbedder
	embedded int
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.embedded++
	return c.StaticEmbedder.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.embedded += len(texts)
	return c.StaticEmbedder.EmbedBatch(ctx, texts)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Chunking.Size = 10
	cfg.Chunking.Overlap = 2
	cfg.Indexing.Workers = 2
	cfg.Embeddings.Provider = "static"
	cfg.Storage.IndexDir = t.TempDir()
	return cfg
}

func newTestEngine(t *testing.T, cfg *config.Config) (*Engine, *countingEmbedder) {
	t.Helper()
	emb := &countingEmbedder{StaticEmbedder: embed.NewStaticEmbedder()}
	e, err := New(cfg, emb)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e, emb
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const catsDoc = "The cat is a small domesticated feline animal kept as a pet " +
	"cats purr and chase mice around the house feline friends sleep many hours " +
	"every day and groom their soft fur with great care"

const carsDoc = "The car is a wheeled motor vehicle used for transportation " +
	"cars have engines and wheels and drive on roads vehicle traffic fills the " +
	"highway every morning as commuters head into the city"

func TestEngine_IndexAndSearch(t *testing.T) {
	cfg := testConfig(t)
	docs := t.TempDir()
	writeFile(t, docs, "cats.txt", catsDoc)
	writeFile(t, docs, "cars.txt", carsDoc)

	e, _ := newTestEngine(t, cfg)
	ctx := context.Background()

	report, err := e.IndexDirectory(ctx, docs, IndexOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, report.TotalDocuments)
	assert.Equal(t, 2, report.Processed)
	assert.Zero(t, report.Failed)
	assert.Greater(t, report.TotalChunks, 2)

	// A feline query must rank the cats document first
	results, err := e.Search(ctx, "feline cat pet", 4)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Contains(t, results[0].Chunk.Metadata.FilePath, "cats.txt")

	// All four persisted artifacts exist
	for _, name := range []string{"vectors.gob", "chunks.gob", "index_meta.json", CatalogFile} {
		_, err := os.Stat(filepath.Join(cfg.Storage.IndexDir, name))
		require.NoError(t, err, "missing artifact %s", name)
	}
}

func TestEngine_FullReindexDoesNotDuplicate(t *testing.T) {
	cfg := testConfig(t)
	docs := t.TempDir()
	writeFile(t, docs, "cats.txt", catsDoc)

	e, _ := newTestEngine(t, cfg)
	ctx := context.Background()

	first, err := e.IndexDirectory(ctx, docs, IndexOptions{})
	require.NoError(t, err)
	second, err := e.IndexDirectory(ctx, docs, IndexOptions{})
	require.NoError(t, err)

	assert.Equal(t, first.TotalChunks, second.TotalChunks)
	assert.Equal(t, 1, second.TotalDocuments)
}

func TestEngine_IncrementalIsIdempotent(t *testing.T) {
	cfg := testConfig(t)
	docs := t.TempDir()
	writeFile(t, docs, "cats.txt", catsDoc)
	writeFile(t, docs, "cars.txt", carsDoc)

	e, emb := newTestEngine(t, cfg)
	ctx := context.Background()

	first, err := e.IndexDirectoryIncremental(ctx, docs, IndexOptions{})
	require.NoError(t, err)
	assert.False(t, first.Skipped)
	assert.Equal(t, 2, first.TotalDocuments)

	embeddedAfterFirst := emb.embedded
	require.Positive(t, embeddedAfterFirst)

	second, err := e.IndexDirectoryIncremental(ctx, docs, IndexOptions{})
	require.NoError(t, err)
	assert.True(t, second.Skipped, "unchanged directory must be a no-op")
	assert.Equal(t, first.TotalChunks, second.TotalChunks)
	assert.Equal(t, embeddedAfterFirst, emb.embedded,
		"no-op run must not call the embedder")
}

func TestEngine_IncrementalPicksUpModification(t *testing.T) {
	cfg := testConfig(t)
	docs := t.TempDir()
	path := writeFile(t, docs, "cats.txt", catsDoc)

	e, _ := newTestEngine(t, cfg)
	ctx := context.Background()

	first, err := e.IndexDirectoryIncremental(ctx, docs, IndexOptions{})
	require.NoError(t, err)

	// Force a distinct mtime so identity changes
	newContent := catsDoc + " plus a fresh paragraph about kittens playing with yarn all afternoon long"
	require.NoError(t, os.WriteFile(path, []byte(newContent), 0o644))
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	second, err := e.IndexDirectoryIncremental(ctx, docs, IndexOptions{})
	require.NoError(t, err)
	assert.False(t, second.Skipped)
	assert.Equal(t, 1, second.TotalDocuments, "modified file must replace, not duplicate")
	assert.Greater(t, second.TotalChunks, first.TotalChunks)
}

func TestEngine_IncrementalRemovesDeletedFiles(t *testing.T) {
	cfg := testConfig(t)
	docs := t.TempDir()
	writeFile(t, docs, "cats.txt", catsDoc)
	carsPath := writeFile(t, docs, "cars.txt", carsDoc)

	e, _ := newTestEngine(t, cfg)
	ctx := context.Background()

	first, err := e.IndexDirectoryIncremental(ctx, docs, IndexOptions{})
	require.NoError(t, err)
	require.Equal(t, 2, first.TotalDocuments)

	require.NoError(t, os.Remove(carsPath))

	second, err := e.IndexDirectoryIncremental(ctx, docs, IndexOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, second.Deleted)
	assert.Equal(t, 1, second.TotalDocuments)
	assert.Less(t, second.TotalChunks, first.TotalChunks)

	// The deleted file never comes back in results
	results, err := e.Search(ctx, "vehicle traffic highway", 10)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotContains(t, r.Chunk.Metadata.FilePath, "cars.txt")
	}

	// Surviving chunks are still retrievable after the rebuild
	results, err = e.Search(ctx, "feline cat pet", 3)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Contains(t, results[0].Chunk.Metadata.FilePath, "cats.txt")
}

func TestEngine_IncrementalRemovesMultipleDeletedFiles(t *testing.T) {
	cfg := testConfig(t)
	docs := t.TempDir()
	writeFile(t, docs, "cats.txt", catsDoc)
	carsPath := writeFile(t, docs, "cars.txt", carsDoc)
	boatsPath := writeFile(t, docs, "boats.txt",
		"The boat is a watercraft that floats on rivers and lakes boats carry "+
			"sailors and cargo across the water sails catch the wind while the hull "+
			"cuts through waves on every voyage out to sea")

	e, _ := newTestEngine(t, cfg)
	ctx := context.Background()

	first, err := e.IndexDirectoryIncremental(ctx, docs, IndexOptions{})
	require.NoError(t, err)
	require.Equal(t, 3, first.TotalDocuments)

	require.NoError(t, os.Remove(carsPath))
	require.NoError(t, os.Remove(boatsPath))

	// Both deletions come out in one pass
	second, err := e.IndexDirectoryIncremental(ctx, docs, IndexOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, second.Deleted)
	assert.Equal(t, 1, second.TotalDocuments)

	// Neither deleted file surfaces again
	results, err := e.Search(ctx, "vehicle traffic highway boat sail", 10)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotContains(t, r.Chunk.Metadata.FilePath, "cars.txt")
		assert.NotContains(t, r.Chunk.Metadata.FilePath, "boats.txt")
	}

	// The survivor's catalog positions still line up with the index
	results, err = e.Search(ctx, "feline cat pet", 3)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Contains(t, results[0].Chunk.Metadata.FilePath, "cats.txt")

	stats, err := e.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Catalog.TotalFiles)
	assert.Equal(t, stats.Index.TotalChunks, stats.Catalog.TotalChunks)
}

func TestEngine_PersistenceAcrossReopen(t *testing.T) {
	cfg := testConfig(t)
	docs := t.TempDir()
	writeFile(t, docs, "cats.txt", catsDoc)

	e, _ := newTestEngine(t, cfg)
	ctx := context.Background()

	report, err := e.IndexDirectory(ctx, docs, IndexOptions{})
	require.NoError(t, err)
	require.NoError(t, e.Close())

	// Fresh engine over the same directory sees the same index
	reopened, _ := newTestEngine(t, cfg)
	stats, err := reopened.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, report.TotalChunks, stats.Index.TotalChunks)
	assert.Equal(t, report.TotalChunks, stats.Catalog.TotalChunks)
	assert.Equal(t, 1, stats.Catalog.TotalFiles)

	results, err := reopened.Search(ctx, "feline cat", 2)
	require.NoError(t, err)
	assert.NotEmpty(t, results)

	// An unchanged incremental run after reopen is still a no-op
	inc, err := reopened.IndexDirectoryIncremental(ctx, docs, IndexOptions{})
	require.NoError(t, err)
	assert.True(t, inc.Skipped)
}

func TestEngine_ConcurrentIndexingRejected(t *testing.T) {
	cfg := testConfig(t)
	docs := t.TempDir()
	for i := 0; i < 4; i++ {
		writeFile(t, docs, fmt.Sprintf("doc%d.txt", i), catsDoc)
	}

	e, _ := newTestEngine(t, cfg)
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	var once sync.Once
	go func() {
		_, err := e.IndexDirectory(ctx, docs, IndexOptions{
			Progress: func(current, total int) {
				once.Do(func() {
					close(started)
					<-release
				})
			},
		})
		done <- err
	}()

	<-started
	_, err := e.IndexDirectory(ctx, docs, IndexOptions{})
	assert.ErrorIs(t, err, ErrIndexingInProgress)

	status := e.Status()
	assert.True(t, status.Indexing)
	assert.Equal(t, docs, status.Folder)

	close(release)
	require.NoError(t, <-done)
	assert.False(t, e.Status().Indexing)
}

func TestEngine_Clear(t *testing.T) {
	cfg := testConfig(t)
	docs := t.TempDir()
	writeFile(t, docs, "cats.txt", catsDoc)

	e, _ := newTestEngine(t, cfg)
	ctx := context.Background()

	_, err := e.IndexDirectory(ctx, docs, IndexOptions{})
	require.NoError(t, err)

	require.NoError(t, e.Clear(ctx))

	stats, err := e.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Index.TotalChunks)
	assert.Zero(t, stats.Catalog.TotalFiles)

	results, err := e.Search(ctx, "feline", 5)
	require.NoError(t, err)
	assert.Empty(t, results)

	// Artifacts are gone from disk
	_, err = os.Stat(filepath.Join(cfg.Storage.IndexDir, "vectors.gob"))
	assert.True(t, os.IsNotExist(err))
}

func TestEngine_SecondProcessLockRejected(t *testing.T) {
	cfg := testConfig(t)
	e, _ := newTestEngine(t, cfg)
	_ = e

	other := &countingEmbedder{StaticEmbedder: embed.NewStaticEmbedder()}
	_, err := New(cfg, other)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locked by another process")
}

func TestEngine_SearchEmptyIndex(t *testing.T) {
	e, _ := newTestEngine(t, testConfig(t))

	results, err := e.Search(context.Background(), "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}
