package classifier

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pkg/errors"

	"github.com/hrygo/repairsense/plugin/ai"
	"github.com/hrygo/repairsense/store"
)

// EmbeddingClassifier embeds texts and scores them with a trained dense head.
// Predictions whose top probability falls below the threshold are unknown/unknown.
type EmbeddingClassifier struct {
	embedder ai.EmbeddingService
	layers   []Layer
	labels   []store.ClassificationResult
	inputDim int
	logger   *slog.Logger

	mu        sync.RWMutex
	threshold float64
}

// NewEmbeddingClassifier loads modelID from repo and builds the classifier.
func NewEmbeddingClassifier(ctx context.Context, repo ModelRepository, modelID string, embedder ai.EmbeddingService, threshold float64, logger *slog.Logger) (*EmbeddingClassifier, error) {
	if repo == nil || embedder == nil {
		return nil, errors.New("model repository and embedding service are required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	ckpt, err := repo.LoadModel(ctx, modelID)
	if err != nil {
		return nil, err
	}
	c, err := NewFromCheckpoint(ckpt, embedder, threshold, logger)
	if err != nil {
		return nil, err
	}
	c.logger.Info("model loaded",
		"model_id", modelID,
		"classes", len(c.labels),
		"threshold", threshold,
	)
	return c, nil
}

// NewFromCheckpoint builds a classifier from an already loaded checkpoint.
func NewFromCheckpoint(ckpt *Checkpoint, embedder ai.EmbeddingService, threshold float64, logger *slog.Logger) (*EmbeddingClassifier, error) {
	if err := ckpt.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "classifier")

	inputDim := ckpt.ModelStateDict.Layers[0].InputDim()
	if dims := embedder.Dimensions(); dims > 0 && dims != inputDim {
		return nil, errors.Wrapf(ErrShapeMismatch, "embedding service yields %d dimensions, model expects %d", dims, inputDim)
	}

	labels := make([]store.ClassificationResult, len(ckpt.LabelEncoder.Classes))
	for i, class := range ckpt.LabelEncoder.Classes {
		labels[i], _ = store.ParseLabel(class)
	}

	if want := ckpt.ModelConfig.EmbeddingModelName; embedder.Model() != want {
		logger.Warn("embedding model differs from the one the classifier was trained with",
			"trained_with", want,
			"using", embedder.Model(),
		)
	}

	return &EmbeddingClassifier{
		embedder:  embedder,
		layers:    ckpt.ModelStateDict.Layers,
		labels:    labels,
		inputDim:  inputDim,
		logger:    logger,
		threshold: threshold,
	}, nil
}

// SetThreshold updates the confidence threshold.
func (c *EmbeddingClassifier) SetThreshold(threshold float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.threshold = threshold
}

// Threshold returns the current confidence threshold.
func (c *EmbeddingClassifier) Threshold() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.threshold
}

// Predict classifies a single text.
func (c *EmbeddingClassifier) Predict(ctx context.Context, text string) (store.ClassificationResult, error) {
	results, err := c.PredictBatch(ctx, []string{text})
	if err != nil {
		return store.ClassificationResult{}, err
	}
	return results[0], nil
}

// PredictBatch embeds all texts in one call and classifies each of them.
func (c *EmbeddingClassifier) PredictBatch(ctx context.Context, texts []string) ([]store.ClassificationResult, error) {
	if len(texts) == 0 {
		return []store.ClassificationResult{}, nil
	}

	vectors, err := c.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, errors.Wrapf(ErrShapeMismatch, "got %d embeddings for %d texts", len(vectors), len(texts))
	}

	threshold := c.Threshold()
	results := make([]store.ClassificationResult, len(texts))
	for i, v := range vectors {
		if len(v) != c.inputDim {
			return nil, errors.Wrapf(ErrShapeMismatch, "text %d embedding has dimension %d, model expects %d", i, len(v), c.inputDim)
		}
		idx, prob := argmax(softmax(forward(c.layers, v)))
		if prob < threshold {
			results[i] = store.UnknownResult()
		} else {
			results[i] = c.labels[idx]
		}
		c.logger.Debug("prediction", "confidence", prob, "section", results[i].Section, "name", results[i].Name)
	}
	return results, nil
}

// Ensure EmbeddingClassifier implements Classifier
var _ Classifier = (*EmbeddingClassifier)(nil)
