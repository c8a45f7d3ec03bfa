package cli

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"pdfchat/internal/chunker"
	"pdfchat/internal/config"
	"pdfchat/internal/domain"
	"pdfchat/internal/embedding"
	embopenai "pdfchat/internal/embedding/openai"
	"pdfchat/internal/embedding/tfidf"
	"pdfchat/internal/extract"
	"pdfchat/internal/llm"
	llmopenai "pdfchat/internal/llm/openai"
	"pdfchat/internal/service"
	"pdfchat/internal/summarizer"
)

// credentialWarning returns a notice when a network provider is configured
// but its key variable is empty. The program still starts.
func credentialWarning(cfg *config.AppConfig) string {
	if cfg.Embedder.Type != "openai" && cfg.LLM.Type != "openai" {
		return ""
	}
	if os.Getenv(cfg.Provider.APIKeyEnv) != "" {
		return ""
	}
	return fmt.Sprintf("Set the %s environment variable before running.", cfg.Provider.APIKeyEnv)
}

func buildEmbedder(cfg *config.AppConfig) (domain.Embedder, error) {
	switch cfg.Embedder.Type {
	case "openai":
		return embopenai.NewClient(embopenai.Config{
			BaseURL:   cfg.Provider.BaseURL,
			APIKeyEnv: cfg.Provider.APIKeyEnv,
			Model:     cfg.Embedder.Model,
			Timeout:   cfg.Provider.Timeout(),
		}), nil
	case "tfidf":
		return tfidf.NewEmbedder(), nil
	case "mock":
		return embedding.NewMockEmbedder(0), nil
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
	}
}

func buildCompleter(cfg *config.AppConfig) (domain.Completer, error) {
	switch cfg.LLM.Type {
	case "openai":
		return llmopenai.NewClient(llmopenai.Config{
			BaseURL:   cfg.Provider.BaseURL,
			APIKeyEnv: cfg.Provider.APIKeyEnv,
			Model:     cfg.LLM.Model,
			Timeout:   cfg.Provider.Timeout(),
		}), nil
	case "mock":
		return llm.NewMockCompleter(), nil
	default:
		return nil, fmt.Errorf("unknown llm: %s", cfg.LLM.Type)
	}
}

func buildService(cfg *config.AppConfig, log *zap.Logger) (*service.RAGServiceImpl, error) {
	emb, err := buildEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	completer, err := buildCompleter(cfg)
	if err != nil {
		return nil, err
	}
	var sum domain.Summarizer
	if cfg.Summarizer.Type == "frequency" {
		sum = summarizer.NewFrequencySummarizer()
	}
	return service.NewRAGService(
		extract.NewExtractor(log),
		chunker.NewRecursiveChunker(cfg.Chunker.Size, *cfg.Chunker.Overlap),
		service.NewIndexer(emb, cfg.Embedder.BatchSize),
		sum,
		completer,
		service.Options{
			TopK:                cfg.Retriever.TopK,
			QueryCacheTTL:       cfg.Retriever.QueryCacheTTL(),
			CondenseQuestion:    *cfg.LLM.CondenseQuestion,
			SummaryMaxSentences: cfg.Summarizer.MaxSentences,
		},
	), nil
}
