package v1

import (
	"context"
	"log/slog"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/semaphore"

	"github.com/hrygo/repairsense/internal/profile"
	"github.com/hrygo/repairsense/store"
)

// Route paths of the classify API.
const (
	RepairsPath      = "/repairs"
	RepairsBatchPath = "/repairs_batch"
)

const defaultMaxInferences = 8

// RepairClassifier is the part of the repair service the API depends on.
type RepairClassifier interface {
	ClassifyRepair(ctx context.Context, rawText string) (store.ClassificationResult, error)
	ClassifyBatchRepair(ctx context.Context, rawTexts []string) ([]store.ClassificationResult, error)
}

type APIV1Service struct {
	Profile       *profile.Profile
	RepairService RepairClassifier

	logger *slog.Logger
	// inferenceSemaphore bounds the classify requests running against the models at once.
	inferenceSemaphore *semaphore.Weighted
}

func NewAPIV1Service(profile *profile.Profile, repairService RepairClassifier, logger *slog.Logger) *APIV1Service {
	if logger == nil {
		logger = slog.Default()
	}
	maxInferences := int64(defaultMaxInferences)
	if profile != nil && profile.Server.MaxConcurrentInferences > 0 {
		maxInferences = profile.Server.MaxConcurrentInferences
	}
	return &APIV1Service{
		Profile:            profile,
		RepairService:      repairService,
		logger:             logger.With("component", "api_v1"),
		inferenceSemaphore: semaphore.NewWeighted(maxInferences),
	}
}

// RegisterRoutes registers the classify routes on g, with mw applied to each.
func (s *APIV1Service) RegisterRoutes(g *echo.Group, mw ...echo.MiddlewareFunc) {
	g.POST(RepairsPath, s.ClassifyRepair, mw...)
	g.POST(RepairsBatchPath, s.ClassifyBatchRepair, mw...)
}
