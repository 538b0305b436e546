package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, 1, cfg.Version)
	assert.Equal(t, 1000, cfg.Chunking.Size)
	assert.Equal(t, 200, cfg.Chunking.Overlap)
	assert.Equal(t, 4, cfg.Indexing.Workers)
	assert.Contains(t, cfg.Indexing.Exclude, "**/node_modules/**")
	assert.Equal(t, "ollama", cfg.Embeddings.Provider)
	assert.Equal(t, "nomic-embed-text", cfg.Embeddings.Model)
	assert.Equal(t, 32, cfg.Embeddings.BatchSize)
	assert.Equal(t, "info", cfg.Server.LogLevel)

	require.NoError(t, cfg.Validate())
}

func TestLoad_ProjectConfigOverridesDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	dir := t.TempDir()
	content := `version: 1
chunking:
  size: 500
  overlap: 50
embeddings:
  provider: static
indexing:
  exclude:
    - "**/*.log"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".docsearch.yaml"), []byte(content), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 500, cfg.Chunking.Size)
	assert.Equal(t, 50, cfg.Chunking.Overlap)
	assert.Equal(t, "static", cfg.Embeddings.Provider)
	// Unset fields keep defaults.
	assert.Equal(t, 4, cfg.Indexing.Workers)
	// User patterns extend the defaults.
	assert.Contains(t, cfg.Indexing.Exclude, "**/*.log")
	assert.Contains(t, cfg.Indexing.Exclude, "**/.git/**")
}

func TestLoad_MissingProjectConfigUsesDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 1000, cfg.Chunking.Size)
}

func TestLoad_InvalidYAML(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".docsearch.yaml"), []byte("chunking: ["), 0o644))

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse")
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("DOCSEARCH_EMBEDDER", "static")
	t.Setenv("DOCSEARCH_WORKERS", "8")
	t.Setenv("DOCSEARCH_INDEX_DIR", "/tmp/custom-index")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "static", cfg.Embeddings.Provider)
	assert.Equal(t, 8, cfg.Indexing.Workers)
	assert.Equal(t, "/tmp/custom-index", cfg.Storage.IndexDir)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "zero chunk size",
			mutate:  func(c *Config) { c.Chunking.Size = 0 },
			wantErr: "chunking.size",
		},
		{
			name:    "negative overlap",
			mutate:  func(c *Config) { c.Chunking.Overlap = -1 },
			wantErr: "chunking.overlap",
		},
		{
			name: "overlap not less than size",
			mutate: func(c *Config) {
				c.Chunking.Size = 100
				c.Chunking.Overlap = 100
			},
			wantErr: "overlap must be less than",
		},
		{
			name:    "zero workers",
			mutate:  func(c *Config) { c.Indexing.Workers = 0 },
			wantErr: "indexing.workers",
		},
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.Embeddings.Provider = "openai" },
			wantErr: "embeddings.provider",
		},
		{
			name:    "zero batch size",
			mutate:  func(c *Config) { c.Embeddings.BatchSize = 0 },
			wantErr: "batch_size",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Server.LogLevel = "verbose" },
			wantErr: "log_level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestWatchDebounce(t *testing.T) {
	cfg := NewConfig()
	assert.Equal(t, 500*time.Millisecond, cfg.WatchDebounce())

	cfg.Indexing.WatchDebounce = "2s"
	assert.Equal(t, 2*time.Second, cfg.WatchDebounce())

	cfg.Indexing.WatchDebounce = "not-a-duration"
	assert.Equal(t, 500*time.Millisecond, cfg.WatchDebounce())

	cfg.Indexing.WatchDebounce = "-1s"
	assert.Equal(t, 500*time.Millisecond, cfg.WatchDebounce())
}

func TestWriteYAML_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg := NewConfig()
	cfg.Chunking.Size = 750
	cfg.Embeddings.Provider = "static"
	require.NoError(t, cfg.WriteYAML(path))

	loaded := NewConfig()
	require.NoError(t, loaded.loadYAML(path))
	assert.Equal(t, 750, loaded.Chunking.Size)
	assert.Equal(t, "static", loaded.Embeddings.Provider)
}
