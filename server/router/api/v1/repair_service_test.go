package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/repairsense/internal/profile"
	apierrors "github.com/hrygo/repairsense/server/internal/errors"
	"github.com/hrygo/repairsense/store"
)

type fakeRepairService struct {
	mu         sync.Mutex
	err        error
	single     []string
	batches    [][]string
	block      chan struct{}
	classified chan struct{}
}

func (f *fakeRepairService) ClassifyRepair(_ context.Context, rawText string) (store.ClassificationResult, error) {
	if f.classified != nil {
		f.classified <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.single = append(f.single, rawText)
	if f.err != nil {
		return store.ClassificationResult{}, f.err
	}
	return store.ClassificationResult{Section: "brakes", Name: rawText}, nil
}

func (f *fakeRepairService) ClassifyBatchRepair(_ context.Context, rawTexts []string) ([]store.ClassificationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, rawTexts)
	if f.err != nil {
		return nil, f.err
	}
	out := make([]store.ClassificationResult, len(rawTexts))
	for i, t := range rawTexts {
		out[i] = store.ClassificationResult{Section: "s", Name: t}
	}
	return out, nil
}

func newTestAPI(svc RepairClassifier, maxInferences int64) (*echo.Echo, *APIV1Service) {
	e := echo.New()
	e.Validator = NewRequestValidator()
	p := &profile.Profile{Server: profile.ServerConfig{MaxConcurrentInferences: maxInferences}}
	api := NewAPIV1Service(p, svc, nil)
	return e, api
}

func newJSONContext(e *echo.Echo, path, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestClassifyRepair(t *testing.T) {
	svc := &fakeRepairService{}
	e, api := newTestAPI(svc, 2)

	c, rec := newJSONContext(e, RepairsPath, `{"text":"Replace <brake> pads!!"}`)
	require.NoError(t, api.ClassifyRepair(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"section":"brakes","name":"Replace <brake> pads!!"}`, rec.Body.String())
	assert.Equal(t, []string{"Replace <brake> pads!!"}, svc.single)
}

func TestClassifyRepair_EmptyTextIsAccepted(t *testing.T) {
	svc := &fakeRepairService{}
	e, api := newTestAPI(svc, 2)

	c, rec := newJSONContext(e, RepairsPath, `{"text":""}`)
	require.NoError(t, api.ClassifyRepair(c))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestClassifyRepair_InvalidRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing text", `{}`},
		{"wrong type", `{"text": 42}`},
		{"malformed json", `{"text":`},
		{"null text", `{"text": null}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeRepairService{}
			e, api := newTestAPI(svc, 2)

			c, _ := newJSONContext(e, RepairsPath, tt.body)
			err := api.ClassifyRepair(c)
			require.Error(t, err)
			assert.True(t, apierrors.IsCode(err, apierrors.ErrCodeInvalidArgument))
			assert.Empty(t, svc.single)
		})
	}
}

func TestClassifyRepair_ServiceErrorIsInternal(t *testing.T) {
	cause := errors.New("classifier exploded: tensor shape [3,384]")
	svc := &fakeRepairService{err: cause}
	e, api := newTestAPI(svc, 2)

	c, _ := newJSONContext(e, RepairsPath, `{"text":"x"}`)
	err := api.ClassifyRepair(c)

	var apiErr *apierrors.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.HTTPStatus())
	assert.Equal(t, apierrors.InternalMessage, apiErr.Response().Message)
	assert.ErrorIs(t, err, cause)
}

func TestClassifyBatchRepair(t *testing.T) {
	svc := &fakeRepairService{}
	e, api := newTestAPI(svc, 2)

	c, rec := newJSONContext(e, RepairsBatchPath, `{"texts":["t1","t2","t3"]}`)
	require.NoError(t, api.ClassifyBatchRepair(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	var got []RepairResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, []RepairResponse{{"s", "t1"}, {"s", "t2"}, {"s", "t3"}}, got)
	assert.Equal(t, [][]string{{"t1", "t2", "t3"}}, svc.batches)
}

func TestClassifyBatchRepair_EmptyList(t *testing.T) {
	svc := &fakeRepairService{}
	e, api := newTestAPI(svc, 2)

	c, rec := newJSONContext(e, RepairsBatchPath, `{"texts":[]}`)
	require.NoError(t, api.ClassifyBatchRepair(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestClassifyBatchRepair_InvalidRequests(t *testing.T) {
	tooMany := `{"texts":[` + strings.TrimSuffix(strings.Repeat(`"x",`, MaxBatchSize+1), ",") + `]}`
	tests := []struct {
		name string
		body string
	}{
		{"missing texts", `{}`},
		{"not a list", `{"texts":"t1"}`},
		{"too many", tooMany},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeRepairService{}
			e, api := newTestAPI(svc, 2)

			c, _ := newJSONContext(e, RepairsBatchPath, tt.body)
			err := api.ClassifyBatchRepair(c)
			assert.True(t, apierrors.IsCode(err, apierrors.ErrCodeInvalidArgument))
			assert.Empty(t, svc.batches)
		})
	}
}

func TestClassifyBatchRepair_ServiceError(t *testing.T) {
	svc := &fakeRepairService{err: errors.New("detector failed")}
	e, api := newTestAPI(svc, 2)

	c, _ := newJSONContext(e, RepairsBatchPath, `{"texts":["a"]}`)
	err := api.ClassifyBatchRepair(c)
	assert.True(t, apierrors.IsCode(err, apierrors.ErrCodeInternal))
}

func TestClassify_CancelledWhileWaitingForSlot(t *testing.T) {
	svc := &fakeRepairService{block: make(chan struct{}), classified: make(chan struct{}, 1)}
	e, api := newTestAPI(svc, 1)

	// Occupy the only inference slot.
	done := make(chan error, 1)
	go func() {
		c, _ := newJSONContext(e, RepairsPath, `{"text":"first"}`)
		done <- api.ClassifyRepair(c)
	}()
	<-svc.classified

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	c, _ := newJSONContext(e, RepairsPath, `{"text":"second"}`)
	c.SetRequest(c.Request().WithContext(ctx))

	err := api.ClassifyRepair(c)
	assert.True(t, apierrors.IsCode(err, apierrors.ErrCodeServiceUnavailable))

	close(svc.block)
	require.NoError(t, <-done)
}

func TestClassifyRepair_FailureLogsErrorCode(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	e := echo.New()
	e.Validator = NewRequestValidator()
	svc := &fakeRepairService{err: errors.New("model offline")}
	api := NewAPIV1Service(&profile.Profile{}, svc, logger)

	c, _ := newJSONContext(e, RepairsPath, `{"text":"change oil"}`)
	err := api.ClassifyRepair(c)
	require.Error(t, err)
	assert.True(t, apierrors.IsCode(err, apierrors.ErrCodeInternal))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "classify failed", entry["msg"])
	assert.Equal(t, "INTERNAL", entry["error_code"])
	assert.Equal(t, RepairsPath, entry["endpoint"])
}
