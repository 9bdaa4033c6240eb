// Package anomaly flags repair texts that are too dissimilar from the known
// training texts to be classified reliably.
package anomaly

import (
	"context"

	"github.com/pkg/errors"
)

var (
	// ErrUnsupportedMetric is returned when the configured similarity metric is unknown.
	ErrUnsupportedMetric = errors.New("unsupported similarity metric")

	// ErrShapeMismatch is returned when embeddings do not line up with their inputs.
	ErrShapeMismatch = errors.New("embedding shape mismatch")
)

// Detector decides whether texts are out of distribution.
type Detector interface {
	// IsAnomaly reports whether a single text is anomalous.
	IsAnomaly(ctx context.Context, text string) (bool, error)

	// IsAnomalyBatch reports, position by position, whether each text is anomalous.
	IsAnomalyBatch(ctx context.Context, texts []string) ([]bool, error)
}
