package anomaly

import (
	"math"

	"github.com/pkg/errors"

	"github.com/hrygo/repairsense/internal/profile"
)

// similarityFunc scores two equal-length vectors; higher means more alike.
type similarityFunc func(a, b []float32) float64

func similarityFor(metric string) (similarityFunc, error) {
	switch metric {
	case profile.MetricCosine:
		return CosineSimilarity, nil
	case profile.MetricEuclidean:
		return EuclideanSimilarity, nil
	default:
		return nil, errors.Wrapf(ErrUnsupportedMetric, "%q", metric)
	}
}

// CosineSimilarity calculates cosine similarity between two vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// EuclideanSimilarity maps the euclidean distance d onto (0, 1] as 1/(1+d).
func EuclideanSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return 1 / (1 + math.Sqrt(sum))
}
