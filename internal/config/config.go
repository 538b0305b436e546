// Package config loads and validates docsearch configuration.
//
// Configuration is applied in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User config (~/.config/docsearch/config.yaml)
//  3. Project config (.docsearch.yaml in the working directory)
//  4. Environment variables (DOCSEARCH_*)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete docsearch configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Chunking   ChunkingConfig   `yaml:"chunking" json:"chunking"`
	Indexing   IndexingConfig   `yaml:"indexing" json:"indexing"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Storage    StorageConfig    `yaml:"storage" json:"storage"`
	Server     ServerConfig     `yaml:"server" json:"server"`
}

// ChunkingConfig configures document chunking.
type ChunkingConfig struct {
	// Size is the target chunk size in words.
	Size int `yaml:"size" json:"size"`
	// Overlap is the number of words shared between adjacent chunks.
	// Must be strictly less than Size.
	Overlap int `yaml:"overlap" json:"overlap"`
}

// IndexingConfig configures the document pipeline.
type IndexingConfig struct {
	// Workers is the worker pool size for concurrent file processing.
	Workers int `yaml:"workers" json:"workers"`
	// Exclude specifies additional glob patterns to skip during scans.
	Exclude []string `yaml:"exclude" json:"exclude"`
	// WatchDebounce is the debounce window for watch mode (e.g. "500ms").
	WatchDebounce string `yaml:"watch_debounce" json:"watch_debounce"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider selects the embedder: "ollama" or "static".
	Provider string `yaml:"provider" json:"provider"`
	// Model is the embedding model name for the Ollama provider.
	Model string `yaml:"model" json:"model"`
	// Dimensions is the vector width. 0 means auto-detect from the embedder.
	Dimensions int `yaml:"dimensions" json:"dimensions"`
	// BatchSize is the number of texts sent per embedding request.
	BatchSize int `yaml:"batch_size" json:"batch_size"`
	// OllamaHost is the Ollama API endpoint. Empty uses http://localhost:11434.
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`
}

// StorageConfig configures where index artifacts live.
type StorageConfig struct {
	// IndexDir is the directory holding vectors.gob, chunks.gob,
	// index_meta.json and metadata.db. Defaults to ~/.docsearch/index.
	IndexDir string `yaml:"index_dir" json:"index_dir"`
}

// ServerConfig configures logging and the serve loop.
type ServerConfig struct {
	LogLevel string `yaml:"log_level" json:"log_level"`
	// LogFile is the log file path. Empty means stderr only.
	LogFile string `yaml:"log_file" json:"log_file"`
}

// defaultExcludePatterns are always excluded from scans.
var defaultExcludePatterns = []string{
	"**/node_modules/**",
	"**/.git/**",
	"**/__pycache__/**",
	"**/dist/**",
	"**/build/**",
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Chunking: ChunkingConfig{
			Size:    1000,
			Overlap: 200,
		},
		Indexing: IndexingConfig{
			Workers:       4,
			Exclude:       defaultExcludePatterns,
			WatchDebounce: "500ms",
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "ollama",
			Model:      "nomic-embed-text",
			Dimensions: 0, // auto-detect from embedder
			BatchSize:  32,
			OllamaHost: "",
		},
		Storage: StorageConfig{
			IndexDir: DefaultIndexDir(),
		},
		Server: ServerConfig{
			LogLevel: "info",
			LogFile:  "",
		},
	}
}

// DefaultIndexDir returns the default index directory (~/.docsearch/index).
// Falls back to the temp directory if the home directory is unavailable.
func DefaultIndexDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".docsearch", "index")
	}
	return filepath.Join(home, ".docsearch", "index")
}

// GetUserConfigPath returns the path to the user configuration file,
// following the XDG Base Directory layout.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "docsearch", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "docsearch", "config.yaml")
	}
	return filepath.Join(home, ".config", "docsearch", "config.yaml")
}

// Load loads configuration for the given working directory.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if path := GetUserConfigPath(); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	if err := cfg.loadFromDir(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromDir attempts to load .docsearch.yaml or .docsearch.yml from dir.
func (c *Config) loadFromDir(dir string) error {
	for _, name := range []string{".docsearch.yaml", ".docsearch.yml"} {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			return c.loadYAML(path)
		}
	}
	// No config file is fine, defaults apply
	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Chunking.Size != 0 {
		c.Chunking.Size = other.Chunking.Size
	}
	if other.Chunking.Overlap != 0 {
		c.Chunking.Overlap = other.Chunking.Overlap
	}

	if other.Indexing.Workers != 0 {
		c.Indexing.Workers = other.Indexing.Workers
	}
	if len(other.Indexing.Exclude) > 0 {
		// User patterns extend the defaults rather than replace them
		c.Indexing.Exclude = append(c.Indexing.Exclude, other.Indexing.Exclude...)
	}
	if other.Indexing.WatchDebounce != "" {
		c.Indexing.WatchDebounce = other.Indexing.WatchDebounce
	}

	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}
	if other.Embeddings.OllamaHost != "" {
		c.Embeddings.OllamaHost = other.Embeddings.OllamaHost
	}

	if other.Storage.IndexDir != "" {
		c.Storage.IndexDir = other.Storage.IndexDir
	}

	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
	if other.Server.LogFile != "" {
		c.Server.LogFile = other.Server.LogFile
	}
}

// applyEnvOverrides applies DOCSEARCH_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DOCSEARCH_EMBEDDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("DOCSEARCH_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("DOCSEARCH_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("DOCSEARCH_INDEX_DIR"); v != "" {
		c.Storage.IndexDir = v
	}
	if v := os.Getenv("DOCSEARCH_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("DOCSEARCH_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Indexing.Workers = n
		}
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Chunking.Size <= 0 {
		return fmt.Errorf("chunking.size must be positive, got %d", c.Chunking.Size)
	}
	if c.Chunking.Overlap < 0 {
		return fmt.Errorf("chunking.overlap must be non-negative, got %d", c.Chunking.Overlap)
	}
	if c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("chunking.overlap must be less than chunking.size, got %d >= %d",
			c.Chunking.Overlap, c.Chunking.Size)
	}

	if c.Indexing.Workers <= 0 {
		return fmt.Errorf("indexing.workers must be positive, got %d", c.Indexing.Workers)
	}

	switch strings.ToLower(c.Embeddings.Provider) {
	case "ollama", "static":
	default:
		return fmt.Errorf("embeddings.provider must be 'ollama' or 'static', got %s",
			c.Embeddings.Provider)
	}

	if c.Embeddings.BatchSize <= 0 {
		return fmt.Errorf("embeddings.batch_size must be positive, got %d", c.Embeddings.BatchSize)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s",
			c.Server.LogLevel)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// WatchDebounce parses the watch debounce window, falling back to 500ms.
func (c *Config) WatchDebounce() time.Duration {
	d, err := time.ParseDuration(c.Indexing.WatchDebounce)
	if err != nil || d <= 0 {
		return 500 * time.Millisecond
	}
	return d
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
