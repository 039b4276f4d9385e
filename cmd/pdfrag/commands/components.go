package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pdfrag/internal/chunker"
	"pdfrag/internal/config"
	"pdfrag/internal/domain"
	"pdfrag/internal/embedding"
	"pdfrag/internal/embedding/hashing"
	"pdfrag/internal/embedding/siglip"
	"pdfrag/internal/extractor"
	"pdfrag/internal/generation/gemini"
	"pdfrag/internal/generation/openai"
	"pdfrag/internal/service"
	"pdfrag/internal/summarizer"
	"pdfrag/internal/vectorstore"
	"pdfrag/internal/vectorstore/memory"
	"pdfrag/internal/vectorstore/qdrant"
)

// buildService assembles the pipeline from config. The generator is only
// constructed when withGenerator is set, so indexing works without an API key.
func buildService(ctx context.Context, cfg *config.AppConfig, withGenerator bool) (*service.RAGService, error) {
	ch, err := chunker.NewRecursiveChunker(cfg.Chunker.ChunkSize, cfg.Chunker.ChunkOverlap)
	if err != nil {
		return nil, err
	}

	backend, err := newEmbedder(cfg.Embedder)
	if err != nil {
		return nil, err
	}
	emb := embedding.NewShared(backend, embedding.SharedOptions{
		Serialize: cfg.Embedder.Serialize,
		RateLimit: cfg.Embedder.RateLimit,
		MaxTokens: cfg.Embedder.MaxTokens,
	})

	st, err := newStorage(cfg.VectorStore)
	if err != nil {
		return nil, err
	}

	var gen domain.Generator
	if withGenerator {
		if gen, err = newGenerator(ctx, cfg.Generator); err != nil {
			return nil, err
		}
	}

	return service.NewRAGService(
		extractor.NewPDFExtractor(), ch, emb, st, gen,
		summarizer.NewFrequencySummarizer(),
		service.Options{TopK: cfg.Retrieval.TopK, SummarySentences: cfg.Summarizer.MaxSentences},
	), nil
}

func newEmbedder(cfg config.EmbedderConfig) (domain.Embedder, error) {
	switch cfg.Type {
	case "hashing", "":
		return hashing.NewEmbedder(cfg.Dimension), nil
	case "siglip":
		if cfg.Siglip == nil {
			return nil, errors.New("siglip embedder config missing")
		}
		return siglip.NewClient(siglip.Config{
			BaseURL:   cfg.Siglip.BaseURL,
			APIKeyEnv: cfg.Siglip.APIKeyEnv,
			Model:     cfg.Siglip.Model,
			Dimension: cfg.Dimension,
			Timeout:   time.Duration(cfg.Siglip.TimeoutSecs) * time.Second,
		}), nil
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Type)
	}
}

func newStorage(cfg config.VectorStoreConfig) (vectorstore.Storage, error) {
	switch cfg.Type {
	case "memory", "":
		return memory.NewStorage(), nil
	case "qdrant":
		if cfg.Qdrant == nil {
			return nil, errors.New("qdrant config missing")
		}
		return qdrant.NewStorage(qdrant.Config{
			URL:              cfg.Qdrant.URL,
			APIKey:           cfg.Qdrant.APIKey,
			CollectionPrefix: cfg.Qdrant.CollectionPrefix,
			Timeout:          time.Duration(cfg.Qdrant.TimeoutSecs) * time.Second,
		}), nil
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.Type)
	}
}

func newGenerator(ctx context.Context, cfg config.GeneratorConfig) (domain.Generator, error) {
	key := cfg.APIKey()
	if key == "" {
		return nil, fmt.Errorf("generator %s: environment variable %s is not set", cfg.Type, cfg.APIKeyEnv)
	}
	switch cfg.Type {
	case "gemini":
		return gemini.NewClient(ctx, gemini.Config{APIKey: key, Model: cfg.ModelName, Temperature: cfg.Temperature, BaseURL: cfg.BaseURL})
	case "openai":
		return openai.NewClient(openai.Config{APIKey: key, Model: cfg.ModelName, Temperature: cfg.Temperature, BaseURL: cfg.BaseURL})
	default:
		return nil, fmt.Errorf("unknown generator: %s", cfg.Type)
	}
}

// documentChat binds the service to one built document for the chat TUI.
type documentChat struct {
	svc   *service.RAGService
	built *service.Built
}

func (d documentChat) Ask(ctx context.Context, question string) (*service.Answer, error) {
	return d.svc.Answer(ctx, d.built, question, 0)
}
