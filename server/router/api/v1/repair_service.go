package v1

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	apierrors "github.com/hrygo/repairsense/server/internal/errors"
	"github.com/hrygo/repairsense/server/internal/observability"
	"github.com/hrygo/repairsense/store"
)

// MaxBatchSize is the largest accepted POST /repairs_batch request.
const MaxBatchSize = 1000

// RepairRequest is the body of POST /repairs.
type RepairRequest struct {
	Text *string `json:"text" validate:"required"`
}

// BatchRepairRequest is the body of POST /repairs_batch.
type BatchRepairRequest struct {
	Texts []string `json:"texts" validate:"required,max=1000"`
}

// RepairResponse is a single classification.
type RepairResponse struct {
	Section string `json:"section"`
	Name    string `json:"name"`
}

func toResponse(r store.ClassificationResult) RepairResponse {
	return RepairResponse{Section: r.Section, Name: r.Name}
}

// ClassifyRepair classifies a single repair text.
// POST /repairs
func (s *APIV1Service) ClassifyRepair(c echo.Context) error {
	var req RepairRequest
	if err := s.bind(c, RepairsPath, &req); err != nil {
		return err
	}

	rc := s.requestContext(c, RepairsPath, 1)
	release, err := s.acquire(c, rc)
	if err != nil {
		return err
	}
	defer release()

	result, err := s.RepairService.ClassifyRepair(c.Request().Context(), *req.Text)
	if err != nil {
		return s.fail(rc, err)
	}

	s.succeed(rc)
	return c.JSON(http.StatusOK, toResponse(result))
}

// ClassifyBatchRepair classifies repair texts, answering in request order.
// POST /repairs_batch
func (s *APIV1Service) ClassifyBatchRepair(c echo.Context) error {
	var req BatchRepairRequest
	if err := s.bind(c, RepairsBatchPath, &req); err != nil {
		return err
	}

	rc := s.requestContext(c, RepairsBatchPath, len(req.Texts))
	release, err := s.acquire(c, rc)
	if err != nil {
		return err
	}
	defer release()

	results, err := s.RepairService.ClassifyBatchRepair(c.Request().Context(), req.Texts)
	if err != nil {
		return s.fail(rc, err)
	}

	out := make([]RepairResponse, len(results))
	for i, r := range results {
		out[i] = toResponse(r)
	}
	s.succeed(rc)
	return c.JSON(http.StatusOK, out)
}

// bind decodes and validates the request body; failures become INVALID_ARGUMENT.
func (s *APIV1Service) bind(c echo.Context, endpoint string, req any) error {
	if err := c.Bind(req); err != nil {
		observability.RecordRequest(endpoint, observability.OutcomeInvalid)
		return apierrors.InvalidArgument("malformed request body")
	}
	if err := c.Validate(req); err != nil {
		observability.RecordRequest(endpoint, observability.OutcomeInvalid)
		s.logger.Debug("invalid request", "endpoint", endpoint, "error", err)
		return apierrors.InvalidArgument("missing or invalid fields")
	}
	return nil
}

func (s *APIV1Service) requestContext(c echo.Context, endpoint string, items int) *observability.RequestContext {
	requestID := c.Response().Header().Get(echo.HeaderXRequestID)
	rc := observability.NewRequestContextWithID(s.logger, requestID, endpoint, items)
	c.SetRequest(c.Request().WithContext(observability.WithRequestContext(c.Request().Context(), rc)))
	return rc
}

// acquire waits for an inference slot; a request cancelled while waiting is SERVICE_UNAVAILABLE.
func (s *APIV1Service) acquire(c echo.Context, rc *observability.RequestContext) (func(), error) {
	if err := s.inferenceSemaphore.Acquire(c.Request().Context(), 1); err != nil {
		apiErr := apierrors.ServiceUnavailable("server is busy", err)
		rc.Warn("no inference slot available",
			slog.String(observability.LogFieldErrorCode, string(apiErr.Code)),
			slog.String("error", err.Error()),
		)
		observability.RecordRequest(rc.Endpoint, observability.OutcomeError)
		return nil, apiErr
	}
	return func() { s.inferenceSemaphore.Release(1) }, nil
}

func (s *APIV1Service) fail(rc *observability.RequestContext, err error) error {
	apiErr := apierrors.Internal(err)
	rc.Error("classify failed", err,
		slog.String(observability.LogFieldErrorCode, string(apiErr.Code)),
		slog.Int64(observability.LogFieldDuration, rc.DurationMs()),
	)
	observability.RecordRequest(rc.Endpoint, observability.OutcomeError)
	observability.RecordDuration(rc.Endpoint, rc.Duration())
	return apiErr
}

func (s *APIV1Service) succeed(rc *observability.RequestContext) {
	rc.Info("classify completed", slog.Int64(observability.LogFieldDuration, rc.DurationMs()))
	observability.RecordRequest(rc.Endpoint, observability.OutcomeSuccess)
	observability.RecordDuration(rc.Endpoint, rc.Duration())
}
