package repair

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/repairsense/plugin/ai/anomaly"
	"github.com/hrygo/repairsense/plugin/ai/classifier"
	"github.com/hrygo/repairsense/store"
	"github.com/hrygo/repairsense/store/cache"
)

var brakePads = store.ClassificationResult{Section: "brakes", Name: "pad_replacement"}

func TestClassifyRepair_EndToEndWithMemoryCache(t *testing.T) {
	ctx := context.Background()
	detector := anomaly.NewMockDetector()
	clf := classifier.NewMockClassifier(map[string]store.ClassificationResult{
		"Replace brake pads!!": brakePads,
	})
	register := cache.NewMemoryCache(2, 24*time.Hour)
	svc := NewService(detector, clf, register, nil)

	got, err := svc.ClassifyRepair(ctx, "Replace <brake> pads!!")
	require.NoError(t, err)
	assert.Equal(t, brakePads, got)
	assert.Equal(t, [][]string{{"Replace brake pads!!"}}, detector.BatchCalls)
	assert.Equal(t, [][]string{{"Replace brake pads!!"}}, clf.BatchCalls)

	cached, ok := register.Get(ctx, "Replace brake pads!!")
	require.True(t, ok)
	assert.Equal(t, brakePads, cached)

	got, err = svc.ClassifyRepair(ctx, "Replace <brake> pads!!")
	require.NoError(t, err)
	assert.Equal(t, brakePads, got)
	assert.Equal(t, 1, detector.CallCount())
	assert.Equal(t, 1, clf.CallCount())
}

func TestClassifyRepair_CacheHitBypassesModels(t *testing.T) {
	ctx := context.Background()
	detector := anomaly.NewMockDetector()
	clf := classifier.NewMockClassifier(nil)
	register := cache.NewMockRegister()
	register.Seed("change oil", store.ClassificationResult{Section: "engine", Name: "oil_change"})

	svc := NewService(detector, clf, register, nil)
	got, err := svc.ClassifyRepair(ctx, "  change oil?  ")
	require.NoError(t, err)

	assert.Equal(t, store.ClassificationResult{Section: "engine", Name: "oil_change"}, got)
	assert.Equal(t, 0, detector.CallCount())
	assert.Equal(t, 0, clf.CallCount())
	assert.Equal(t, []string{"change oil"}, register.GetCalls)
	assert.Empty(t, register.SetCalls)
}

func TestClassifyRepair_AnomalyIsCached(t *testing.T) {
	ctx := context.Background()
	detector := anomaly.NewMockDetector("sing a song")
	clf := classifier.NewMockClassifier(nil)
	register := cache.NewMockRegister()

	svc := NewService(detector, clf, register, nil)
	got, err := svc.ClassifyRepair(ctx, "sing a song")
	require.NoError(t, err)

	assert.True(t, got.IsUnknown())
	assert.Equal(t, 0, clf.CallCount())
	stored, ok := register.Value("sing a song")
	require.True(t, ok)
	assert.Equal(t, store.UnknownResult(), stored)
	assert.Equal(t, []time.Duration{0}, register.SetTTLs)
}

func TestClassifyRepair_WithoutCache(t *testing.T) {
	ctx := context.Background()
	detector := anomaly.NewMockDetector()
	clf := classifier.NewMockClassifier(map[string]store.ClassificationResult{"fix": brakePads})

	svc := NewService(detector, clf, nil, nil)
	assert.False(t, svc.CacheEnabled())

	for i := 0; i < 2; i++ {
		got, err := svc.ClassifyRepair(ctx, "fix")
		require.NoError(t, err)
		assert.Equal(t, brakePads, got)
	}
	assert.Equal(t, 2, detector.CallCount())
	assert.Equal(t, 2, clf.CallCount())
}

func TestClassifyRepair_ErrorsPassThrough(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("model backend down")

	t.Run("Detector", func(t *testing.T) {
		detector := anomaly.NewMockDetector()
		detector.Err = boom
		clf := classifier.NewMockClassifier(nil)
		register := cache.NewMockRegister()

		_, err := NewService(detector, clf, register, nil).ClassifyRepair(ctx, "text")
		assert.Same(t, boom, err)
		assert.Equal(t, 0, clf.CallCount())
		assert.Empty(t, register.SetCalls)
	})

	t.Run("Classifier", func(t *testing.T) {
		detector := anomaly.NewMockDetector()
		clf := classifier.NewMockClassifier(nil)
		clf.Err = boom
		register := cache.NewMockRegister()

		_, err := NewService(detector, clf, register, nil).ClassifyRepair(ctx, "text")
		assert.Same(t, boom, err)
		assert.Empty(t, register.SetCalls)
	})
}

func TestClassifyRepair_FailedCacheWriteStillReturns(t *testing.T) {
	ctx := context.Background()
	register := cache.NewMockRegister()
	register.FailSets = true
	clf := classifier.NewMockClassifier(map[string]store.ClassificationResult{"fix": brakePads})

	got, err := NewService(anomaly.NewMockDetector(), clf, register, nil).ClassifyRepair(ctx, "fix")
	require.NoError(t, err)
	assert.Equal(t, brakePads, got)
}

func TestClassifyBatchRepair_EndToEndMixed(t *testing.T) {
	ctx := context.Background()
	detector := anomaly.NewMockDetector("t2")
	clf := classifier.NewMockClassifier(map[string]store.ClassificationResult{
		"t3": {Section: "s3", Name: "n3"},
	})
	register := cache.NewMockRegister()
	cachedT1 := store.ClassificationResult{Section: "s1", Name: "n1"}
	register.Seed("t1", cachedT1)

	svc := NewService(detector, clf, register, nil)
	results, err := svc.ClassifyBatchRepair(ctx, []string{"t1", "t2", "t3"})
	require.NoError(t, err)

	assert.Equal(t, []store.ClassificationResult{
		cachedT1,
		store.UnknownResult(),
		{Section: "s3", Name: "n3"},
	}, results)
	assert.Equal(t, [][]string{{"t2", "t3"}}, detector.BatchCalls)
	assert.Equal(t, [][]string{{"t3"}}, clf.BatchCalls)

	assert.ElementsMatch(t, []string{"t2", "t3"}, register.SetCalls)
	v, _ := register.Value("t2")
	assert.Equal(t, store.UnknownResult(), v)
	v, _ = register.Value("t3")
	assert.Equal(t, store.ClassificationResult{Section: "s3", Name: "n3"}, v)
}

func TestClassifyBatchRepair_BatchesModelCalls(t *testing.T) {
	ctx := context.Background()
	const n = 25

	texts := make([]string, n)
	want := make([]store.ClassificationResult, n)
	predictions := make(map[string]store.ClassificationResult, n)
	for i := range texts {
		texts[i] = fmt.Sprintf("repair %d", i)
		want[i] = store.ClassificationResult{Section: fmt.Sprintf("s%d", i), Name: fmt.Sprintf("n%d", i)}
		predictions[texts[i]] = want[i]
	}

	detector := anomaly.NewMockDetector()
	clf := classifier.NewMockClassifier(predictions)
	svc := NewService(detector, clf, cache.NewMemoryCache(100, time.Hour), nil)

	results, err := svc.ClassifyBatchRepair(ctx, texts)
	require.NoError(t, err)
	assert.Equal(t, want, results)
	assert.Equal(t, 1, detector.CallCount())
	assert.Equal(t, 1, clf.CallCount())
	assert.Len(t, clf.BatchCalls[0], n)
}

func TestClassifyBatchRepair_OrderWithInterleavedOutcomes(t *testing.T) {
	ctx := context.Background()

	var (
		texts     []string
		want      []store.ClassificationResult
		anomalies []string
	)
	register := cache.NewMockRegister()
	predictions := make(map[string]store.ClassificationResult)
	for i := 0; i < 30; i++ {
		text := fmt.Sprintf("text %d", i)
		texts = append(texts, text)
		switch i % 3 {
		case 0:
			r := store.ClassificationResult{Section: "cached", Name: text}
			register.Seed(text, r)
			want = append(want, r)
		case 1:
			anomalies = append(anomalies, text)
			want = append(want, store.UnknownResult())
		default:
			r := store.ClassificationResult{Section: "predicted", Name: text}
			predictions[text] = r
			want = append(want, r)
		}
	}

	detector := anomaly.NewMockDetector(anomalies...)
	clf := classifier.NewMockClassifier(predictions)
	results, err := NewService(detector, clf, register, nil).ClassifyBatchRepair(ctx, texts)
	require.NoError(t, err)

	assert.Equal(t, want, results)
	assert.Len(t, detector.BatchCalls[0], 20)
	assert.Len(t, clf.BatchCalls[0], 10)
}

func TestClassifyBatchRepair_AllCachedOrAnomalous(t *testing.T) {
	ctx := context.Background()

	t.Run("AllCached", func(t *testing.T) {
		register := cache.NewMockRegister()
		register.Seed("a", brakePads)
		register.Seed("b", brakePads)
		detector := anomaly.NewMockDetector()
		clf := classifier.NewMockClassifier(nil)

		results, err := NewService(detector, clf, register, nil).ClassifyBatchRepair(ctx, []string{"a", "<b>"})
		require.NoError(t, err)
		assert.Equal(t, []store.ClassificationResult{brakePads, brakePads}, results)
		assert.Equal(t, 0, detector.CallCount())
		assert.Equal(t, 0, clf.CallCount())
	})

	t.Run("AllAnomalous", func(t *testing.T) {
		detector := anomaly.NewMockDetector("x", "y")
		clf := classifier.NewMockClassifier(nil)

		results, err := NewService(detector, clf, nil, nil).ClassifyBatchRepair(ctx, []string{"x", "y"})
		require.NoError(t, err)
		assert.Equal(t, []store.ClassificationResult{store.UnknownResult(), store.UnknownResult()}, results)
		assert.Equal(t, 1, detector.CallCount())
		assert.Equal(t, 0, clf.CallCount())
	})

	t.Run("Empty", func(t *testing.T) {
		detector := anomaly.NewMockDetector()
		clf := classifier.NewMockClassifier(nil)

		results, err := NewService(detector, clf, nil, nil).ClassifyBatchRepair(ctx, []string{})
		require.NoError(t, err)
		assert.Empty(t, results)
		assert.NotNil(t, results)
		assert.Equal(t, 0, detector.CallCount())
	})
}

func TestClassifyBatchRepair_SanitizedDuplicatesShareKey(t *testing.T) {
	ctx := context.Background()
	clf := classifier.NewMockClassifier(map[string]store.ClassificationResult{"brake pads": brakePads})
	register := cache.NewMemoryCache(10, time.Hour)
	svc := NewService(anomaly.NewMockDetector(), clf, register, nil)

	_, err := svc.ClassifyBatchRepair(ctx, []string{"<brake pads>"})
	require.NoError(t, err)

	results, err := svc.ClassifyBatchRepair(ctx, []string{"[brake pads]", " brake pads? "})
	require.NoError(t, err)
	assert.Equal(t, []store.ClassificationResult{brakePads, brakePads}, results)
	assert.Equal(t, 1, clf.CallCount())
}

func TestClassifyBatchRepair_ErrorAbortsBatch(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("classifier crashed")

	detector := anomaly.NewMockDetector("b")
	clf := classifier.NewMockClassifier(nil)
	clf.Err = boom
	register := cache.NewMockRegister()

	results, err := NewService(detector, clf, register, nil).ClassifyBatchRepair(ctx, []string{"a", "b", "c"})
	assert.Same(t, boom, err)
	assert.Nil(t, results)
}

type shortDetector struct{}

func (shortDetector) IsAnomaly(context.Context, string) (bool, error) { return false, nil }
func (shortDetector) IsAnomalyBatch(context.Context, []string) ([]bool, error) {
	return []bool{false}, nil
}

func TestClassifyBatchRepair_ShapeMismatch(t *testing.T) {
	ctx := context.Background()
	svc := NewService(shortDetector{}, classifier.NewMockClassifier(nil), nil, nil)

	_, err := svc.ClassifyBatchRepair(ctx, []string{"a", "b"})
	assert.ErrorIs(t, err, anomaly.ErrShapeMismatch)
}
