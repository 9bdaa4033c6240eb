package classifier

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ModelRepository retrieves trained classifier checkpoints.
type ModelRepository interface {
	// LoadModel loads and validates the checkpoint identified by modelID.
	LoadModel(ctx context.Context, modelID string) (*Checkpoint, error)

	// GetModelMetadata describes the checkpoint identified by modelID.
	GetModelMetadata(ctx context.Context, modelID string) (*ModelMetadata, error)
}

// ModelMetadata describes a stored checkpoint.
type ModelMetadata struct {
	Name           string    `json:"name"`
	Path           string    `json:"path"`
	EmbeddingModel string    `json:"embedding_model"`
	NumClasses     int       `json:"num_classes"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// LocalModelRepository reads JSON checkpoints from the local filesystem.
// Relative model IDs resolve against BaseDir.
type LocalModelRepository struct {
	BaseDir string
}

// NewLocalModelRepository creates a LocalModelRepository rooted at baseDir.
func NewLocalModelRepository(baseDir string) *LocalModelRepository {
	return &LocalModelRepository{BaseDir: baseDir}
}

func (r *LocalModelRepository) path(modelID string) string {
	if filepath.IsAbs(modelID) || r.BaseDir == "" {
		return modelID
	}
	return filepath.Join(r.BaseDir, modelID)
}

// LoadModel reads and validates the checkpoint at modelID.
func (r *LocalModelRepository) LoadModel(_ context.Context, modelID string) (*Checkpoint, error) {
	path := r.path(modelID)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read model %s", path)
	}

	var ckpt Checkpoint
	if err := json.Unmarshal(data, &ckpt); err != nil {
		return nil, errors.Wrapf(ErrInvalidCheckpoint, "decode %s: %v", path, err)
	}
	if err := ckpt.Validate(); err != nil {
		return nil, errors.Wrapf(err, "model %s", path)
	}
	return &ckpt, nil
}

// GetModelMetadata loads the checkpoint and reports what it was built with.
func (r *LocalModelRepository) GetModelMetadata(ctx context.Context, modelID string) (*ModelMetadata, error) {
	path := r.path(modelID)
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to stat model %s", path)
	}
	ckpt, err := r.LoadModel(ctx, modelID)
	if err != nil {
		return nil, err
	}
	return &ModelMetadata{
		Name:           strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Path:           path,
		EmbeddingModel: ckpt.ModelConfig.EmbeddingModelName,
		NumClasses:     ckpt.ModelConfig.NumClasses,
		UpdatedAt:      info.ModTime(),
	}, nil
}

// Ensure LocalModelRepository implements ModelRepository
var _ ModelRepository = (*LocalModelRepository)(nil)
