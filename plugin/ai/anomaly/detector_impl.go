package anomaly

import (
	"bufio"
	"context"
	"log/slog"
	"math"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/hrygo/repairsense/internal/profile"
	"github.com/hrygo/repairsense/plugin/ai"
)

const (
	knownChunkSize   = 256
	knownConcurrency = 4
)

// SimilarityDetector flags a text as anomalous when its highest similarity to
// any known training text is below the threshold.
type SimilarityDetector struct {
	embedder  ai.EmbeddingService
	metric    string
	sim       similarityFunc
	threshold float64
	logger    *slog.Logger

	knownTexts      []string
	knownEmbeddings [][]float32
}

// NewSimilarityDetector loads the known texts from cfg.DataPath and embeds them once.
func NewSimilarityDetector(ctx context.Context, cfg *profile.SimilarityConfig, embedder ai.EmbeddingService, logger *slog.Logger) (*SimilarityDetector, error) {
	if cfg == nil {
		return nil, errors.New("similarity config is required")
	}
	if embedder == nil {
		return nil, errors.New("embedding service is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	sim, err := similarityFor(cfg.Metric)
	if err != nil {
		return nil, err
	}

	texts, err := LoadKnownTexts(cfg.DataPath)
	if err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return nil, errors.Errorf("no known texts found in %s", cfg.DataPath)
	}

	d := &SimilarityDetector{
		embedder:   embedder,
		metric:     cfg.Metric,
		sim:        sim,
		threshold:  cfg.DistanceThreshold,
		logger:     logger.With("component", "anomaly_detector", "metric", cfg.Metric),
		knownTexts: texts,
	}

	start := time.Now()
	if d.knownEmbeddings, err = d.embedKnown(ctx, texts); err != nil {
		return nil, err
	}
	d.logger.Info("anomaly detector ready",
		"known_texts", len(texts),
		"threshold", d.threshold,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return d, nil
}

// LoadKnownTexts reads one text per line, trimmed, skipping blank lines.
func LoadKnownTexts(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open training data %s", path)
	}
	defer f.Close()

	var texts []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			texts = append(texts, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to read training data %s", path)
	}
	return texts, nil
}

// embedKnown embeds texts in chunks, a few chunks in flight at once, preserving order.
func (d *SimilarityDetector) embedKnown(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(knownConcurrency)
	for start := 0; start < len(texts); start += knownChunkSize {
		end := min(start+knownChunkSize, len(texts))
		g.Go(func() error {
			vectors, err := d.embedder.EmbedBatch(gctx, texts[start:end])
			if err != nil {
				return errors.Wrap(err, "failed to embed known texts")
			}
			if len(vectors) != end-start {
				return errors.Wrapf(ErrShapeMismatch, "got %d embeddings for %d known texts", len(vectors), end-start)
			}
			copy(out[start:end], vectors)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	dim := len(out[0])
	for i, v := range out {
		if len(v) != dim || dim == 0 {
			return nil, errors.Wrapf(ErrShapeMismatch, "known text %d has dimension %d, want %d", i, len(v), dim)
		}
	}
	return out, nil
}

// IsAnomaly reports whether a single text is anomalous.
func (d *SimilarityDetector) IsAnomaly(ctx context.Context, text string) (bool, error) {
	flags, err := d.IsAnomalyBatch(ctx, []string{text})
	if err != nil {
		return false, err
	}
	return flags[0], nil
}

// IsAnomalyBatch embeds all texts in one call and compares each against every known text.
func (d *SimilarityDetector) IsAnomalyBatch(ctx context.Context, texts []string) ([]bool, error) {
	if len(texts) == 0 {
		return []bool{}, nil
	}

	vectors, err := d.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, errors.Wrapf(ErrShapeMismatch, "got %d embeddings for %d texts", len(vectors), len(texts))
	}

	dim := len(d.knownEmbeddings[0])
	flags := make([]bool, len(texts))
	for i, v := range vectors {
		if len(v) != dim {
			return nil, errors.Wrapf(ErrShapeMismatch, "query %d has dimension %d, want %d", i, len(v), dim)
		}
		best := d.maxSimilarity(v)
		flags[i] = best < d.threshold
		d.logger.Debug("anomaly check", "max_similarity", best, "anomaly", flags[i])
	}
	return flags, nil
}

func (d *SimilarityDetector) maxSimilarity(v []float32) float64 {
	best := math.Inf(-1)
	for _, known := range d.knownEmbeddings {
		if s := d.sim(v, known); s > best {
			best = s
		}
	}
	return best
}

// KnownCount returns the number of known training texts.
func (d *SimilarityDetector) KnownCount() int {
	return len(d.knownTexts)
}

// Ensure SimilarityDetector implements Detector
var _ Detector = (*SimilarityDetector)(nil)
