// Package repair orchestrates repair text classification:
// sanitize, cache lookup, anomaly check, classification and cache store.
package repair

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/repairsense/plugin/ai/anomaly"
	"github.com/hrygo/repairsense/plugin/ai/classifier"
	"github.com/hrygo/repairsense/store"
	"github.com/hrygo/repairsense/store/cache"
)

// Service classifies repair texts for single and batch requests.
//
// The cache is optional: a nil Register means results are neither looked up
// nor stored. Detector and classifier are always called through their batch
// entry points, at most once each per request.
type Service struct {
	detector   anomaly.Detector
	classifier classifier.Classifier
	cache      cache.Register
	logger     *slog.Logger
}

// NewService creates a Service. register may be nil to run without a cache.
func NewService(detector anomaly.Detector, clf classifier.Classifier, register cache.Register, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		detector:   detector,
		classifier: clf,
		cache:      register,
		logger:     logger.With("component", "repair_service"),
	}
}

// CacheEnabled reports whether results are cached.
func (s *Service) CacheEnabled() bool {
	return s.cache != nil
}

// pendingText is a sanitized text still to be resolved and the output slot it fills.
type pendingText struct {
	text  string
	index int
}

// ClassifyRepair classifies a single raw text.
// Detector and classifier errors are logged and returned unmodified.
func (s *Service) ClassifyRepair(ctx context.Context, rawText string) (store.ClassificationResult, error) {
	start := time.Now()
	text := Sanitize(rawText)
	s.logger.Debug("classify repair", "text_length", len(text))

	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, text); ok {
			recordResults(resultCached, 1)
			s.logger.Debug("classify repair served from cache", "text_length", len(text))
			return cached, nil
		}
	}

	results := make([]store.ClassificationResult, 1)
	if err := s.resolve(ctx, []pendingText{{text: text, index: 0}}, results); err != nil {
		s.logger.Error("classify repair failed", "text_length", len(text), "error", err)
		return store.ClassificationResult{}, err
	}

	s.logger.Info("classify repair done",
		"text_length", len(text),
		"section", results[0].Section,
		"name", results[0].Name,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return results[0], nil
}

// ClassifyBatchRepair classifies rawTexts, returning one result per text in input order.
// Any error aborts the whole batch; no partial results are returned.
func (s *Service) ClassifyBatchRepair(ctx context.Context, rawTexts []string) ([]store.ClassificationResult, error) {
	start := time.Now()
	results := make([]store.ClassificationResult, len(rawTexts))
	if len(rawTexts) == 0 {
		return results, nil
	}

	pending := make([]pendingText, 0, len(rawTexts))
	for i, raw := range rawTexts {
		text := Sanitize(raw)
		if s.cache != nil {
			if cached, ok := s.cache.Get(ctx, text); ok {
				results[i] = cached
				continue
			}
		}
		pending = append(pending, pendingText{text: text, index: i})
	}

	hits := len(rawTexts) - len(pending)
	if s.cache != nil {
		recordResults(resultCached, hits)
	}

	if err := s.resolve(ctx, pending, results); err != nil {
		s.logger.Error("classify batch repair failed", "batch_size", len(rawTexts), "error", err)
		return nil, err
	}

	s.logger.Info("classify batch repair done",
		"batch_size", len(rawTexts),
		"cache_hits", hits,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return results, nil
}

// resolve runs the anomaly check over all pending texts in one call, then the
// classifier over the normal ones in one call, filling results by each item's
// original index and caching every result.
func (s *Service) resolve(ctx context.Context, pending []pendingText, results []store.ClassificationResult) error {
	if len(pending) == 0 {
		return nil
	}

	flags, err := s.detector.IsAnomalyBatch(ctx, texts(pending))
	if err != nil {
		return err
	}
	if len(flags) != len(pending) {
		return errors.Wrapf(anomaly.ErrShapeMismatch, "detector returned %d flags for %d texts", len(flags), len(pending))
	}

	normal := make([]pendingText, 0, len(pending))
	for i, p := range pending {
		if !flags[i] {
			normal = append(normal, p)
			continue
		}
		results[p.index] = store.UnknownResult()
		s.cacheResult(ctx, p.text, results[p.index])
	}
	recordResults(resultAnomaly, len(pending)-len(normal))

	if len(normal) == 0 {
		return nil
	}

	predictions, err := s.classifier.PredictBatch(ctx, texts(normal))
	if err != nil {
		return err
	}
	if len(predictions) != len(normal) {
		return errors.Wrapf(classifier.ErrShapeMismatch, "classifier returned %d results for %d texts", len(predictions), len(normal))
	}

	for i, p := range normal {
		results[p.index] = predictions[i]
		s.cacheResult(ctx, p.text, predictions[i])
	}
	recordResults(resultPredicted, len(normal))
	return nil
}

// cacheResult caches value under the sanitized text with the backend default TTL.
func (s *Service) cacheResult(ctx context.Context, text string, value store.ClassificationResult) {
	if s.cache == nil {
		return
	}
	if !s.cache.Set(ctx, text, value, 0) {
		s.logger.Warn("failed to cache classification result", "text_length", len(text))
	}
}

func texts(items []pendingText) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.text
	}
	return out
}
