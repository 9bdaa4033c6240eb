// Package ai provides the embedding client shared by the anomaly detector and
// the repair classifier.
package ai

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"

	"github.com/hrygo/repairsense/internal/profile"
	"github.com/hrygo/repairsense/plugin/ai/timeout"
)

const (
	defaultBatchSize     = 64
	defaultOllamaBaseURL = "http://localhost:11434/v1"
)

// EmbeddingService is the vector embedding service interface.
type EmbeddingService interface {
	// Embed generates vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates vectors for multiple texts, aligned by position.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Model returns the embedding model name.
	Model() string

	// Dimensions returns the requested vector dimension, 0 when the model default is used.
	Dimensions() int
}

type embeddingService struct {
	client     *openai.Client
	model      string
	dimensions int
	batchSize  int
	logger     *slog.Logger
}

// NewEmbeddingService creates an EmbeddingService against an OpenAI-compatible endpoint.
// A non-empty model overrides cfg.Model, so the detector and the classifier can
// each use the model they were built with.
func NewEmbeddingService(cfg *profile.EmbeddingConfig, model string, logger *slog.Logger) (EmbeddingService, error) {
	if cfg == nil {
		return nil, errors.New("embedding config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	switch cfg.Provider {
	case "openai", "siliconflow":
		// SiliconFlow is compatible with OpenAI API
		if cfg.BaseURL != "" {
			clientConfig.BaseURL = cfg.BaseURL
		}
	case "ollama":
		clientConfig.BaseURL = defaultOllamaBaseURL
		if cfg.BaseURL != "" {
			clientConfig.BaseURL = cfg.BaseURL
		}
	default:
		return nil, errors.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}

	if model == "" {
		model = cfg.Model
	}
	if model == "" {
		return nil, errors.New("embedding model is required")
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	return &embeddingService{
		client:     openai.NewClientWithConfig(clientConfig),
		model:      model,
		dimensions: cfg.Dimensions,
		batchSize:  batchSize,
		logger:     logger.With("component", "embedding", "model", model),
	}, nil
}

func (s *embeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch splits texts into requests of at most batchSize inputs.
func (s *embeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.New("no texts provided for embedding")
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += s.batchSize {
		end := min(start+s.batchSize, len(texts))
		chunk, err := s.createEmbeddings(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, chunk...)
	}
	return vectors, nil
}

func (s *embeddingService) createEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	req := openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(s.model),
		Dimensions: s.dimensions,
	}

	ctx, cancel := context.WithTimeout(ctx, timeout.EmbeddingTimeout)
	defer cancel()

	resp, err := s.client.CreateEmbeddings(ctx, req)
	if err != nil {
		s.logger.Error("create embeddings failed", "count", len(texts), "error", err)
		return nil, errors.Wrap(err, "create embeddings failed")
	}
	if len(resp.Data) != len(texts) {
		return nil, errors.Errorf("embedding response has %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	// Providers are allowed to return data out of order; place by index.
	vectors := make([][]float32, len(texts))
	for i, data := range resp.Data {
		idx := data.Index
		if idx < 0 || idx >= len(texts) || vectors[idx] != nil {
			idx = i
		}
		vectors[idx] = data.Embedding
	}
	return vectors, nil
}

func (s *embeddingService) Model() string {
	return s.model
}

func (s *embeddingService) Dimensions() int {
	return s.dimensions
}
