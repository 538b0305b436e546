package embed

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/docsearch-app/docsearch/internal/config"
	"github.com/docsearch-app/docsearch/internal/errors"
)

// Provider names accepted in configuration.
const (
	ProviderOllama = "ollama"
	ProviderStatic = "static"
)

// NewEmbedder builds the embedder selected by configuration. No silent
// fallback: if Ollama is selected and unreachable, the error says so and
// names the static alternative.
//
// Query caching is on by default; DOCSEARCH_EMBED_CACHE=false disables it.
func NewEmbedder(ctx context.Context, cfg config.EmbeddingsConfig) (Embedder, error) {
	provider := strings.ToLower(cfg.Provider)

	var embedder Embedder
	switch provider {
	case ProviderStatic:
		embedder = NewStaticEmbedder()

	case ProviderOllama, "":
		ollamaCfg := DefaultOllamaConfig()
		if cfg.OllamaHost != "" {
			ollamaCfg.Host = cfg.OllamaHost
		}
		if cfg.Model != "" {
			ollamaCfg.Model = cfg.Model
		}
		ollamaCfg.Dimensions = cfg.Dimensions
		if cfg.BatchSize > 0 {
			ollamaCfg.BatchSize = cfg.BatchSize
		}

		var err error
		embedder, err = NewOllamaEmbedder(ctx, ollamaCfg)
		if err != nil {
			return nil, fmt.Errorf(
				"ollama unavailable: %w\n\nTo fix:\n  1. Start Ollama: ollama serve\n  2. Pull the model: ollama pull %s\n  3. Or use hash embeddings: set embeddings.provider to %q",
				err, ollamaCfg.Model, ProviderStatic)
		}

	default:
		return nil, errors.ValidationError(
			fmt.Sprintf("unknown embedding provider %q (want %q or %q)",
				provider, ProviderOllama, ProviderStatic), nil)
	}

	if !cacheDisabled() {
		embedder = NewCachedEmbedder(embedder, DefaultEmbeddingCacheSize)
	}
	return embedder, nil
}

func cacheDisabled() bool {
	switch strings.ToLower(os.Getenv("DOCSEARCH_EMBED_CACHE")) {
	case "false", "0", "off", "disabled":
		return true
	}
	return false
}
