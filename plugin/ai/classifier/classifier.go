// Package classifier maps sanitized repair texts onto (section, name) labels
// with a feed-forward head over sentence embeddings.
package classifier

import (
	"context"

	"github.com/pkg/errors"

	"github.com/hrygo/repairsense/store"
)

var (
	// ErrInvalidCheckpoint is returned when a checkpoint cannot be turned into a model.
	ErrInvalidCheckpoint = errors.New("invalid model checkpoint")

	// ErrShapeMismatch is returned when embeddings do not fit the model input.
	ErrShapeMismatch = errors.New("embedding shape mismatch")
)

// Classifier predicts the repair label of sanitized texts.
type Classifier interface {
	// Predict classifies a single text.
	Predict(ctx context.Context, text string) (store.ClassificationResult, error)

	// PredictBatch classifies texts, returning one result per text in the same order.
	PredictBatch(ctx context.Context, texts []string) ([]store.ClassificationResult, error)
}
