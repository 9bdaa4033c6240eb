package classifier

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

var checkpointValidate = validator.New()

// Checkpoint is the serialised form of a trained classifier.
type Checkpoint struct {
	ModelConfig    ModelConfig  `json:"model_config"`
	LabelEncoder   LabelEncoder `json:"label_encoder"`
	ModelStateDict StateDict    `json:"model_state_dict"`
}

// ModelConfig describes how the model was built.
type ModelConfig struct {
	EmbeddingModelName string  `json:"embedding_model_name" validate:"required"`
	NumClasses         int     `json:"num_classes" validate:"gt=0"`
	HiddenDim          int     `json:"hidden_dim" validate:"gte=0"`
	Dropout            float64 `json:"dropout" validate:"gte=0,lt=1"`
}

// LabelEncoder maps class indices to "section|name" labels.
type LabelEncoder struct {
	Classes []string `json:"classes" validate:"required,min=1,dive,required"`
}

// StateDict holds the weights of the linear layers, input side first.
type StateDict struct {
	Layers []Layer `json:"layers" validate:"required,min=1"`
}

// Layer is a dense layer computing weight·x + bias.
// Weight is stored row-major as [out][in].
type Layer struct {
	Weight [][]float32 `json:"weight" validate:"required,min=1"`
	Bias   []float32   `json:"bias" validate:"required,min=1"`
}

// InputDim returns the width of the layer's input.
func (l *Layer) InputDim() int {
	if len(l.Weight) == 0 {
		return 0
	}
	return len(l.Weight[0])
}

// OutputDim returns the width of the layer's output.
func (l *Layer) OutputDim() int {
	return len(l.Weight)
}

// Validate checks the checkpoint tags, then that the layer shapes chain and
// the output width matches the label set.
func (c *Checkpoint) Validate() error {
	if err := checkpointValidate.Struct(c); err != nil {
		return errors.Wrap(ErrInvalidCheckpoint, err.Error())
	}

	layers := c.ModelStateDict.Layers
	for i := range layers {
		l := &layers[i]
		in := l.InputDim()
		if in == 0 {
			return errors.Wrapf(ErrInvalidCheckpoint, "layer %d has an empty weight row", i)
		}
		for r, row := range l.Weight {
			if len(row) != in {
				return errors.Wrapf(ErrInvalidCheckpoint, "layer %d row %d has width %d, want %d", i, r, len(row), in)
			}
		}
		if len(l.Bias) != l.OutputDim() {
			return errors.Wrapf(ErrInvalidCheckpoint, "layer %d bias has %d entries, want %d", i, len(l.Bias), l.OutputDim())
		}
		if i > 0 && layers[i-1].OutputDim() != in {
			return errors.Wrapf(ErrInvalidCheckpoint, "layer %d expects %d inputs, previous layer yields %d", i, in, layers[i-1].OutputDim())
		}
	}

	out := layers[len(layers)-1].OutputDim()
	if out != c.ModelConfig.NumClasses {
		return errors.Wrapf(ErrInvalidCheckpoint, "output layer has %d units, num_classes is %d", out, c.ModelConfig.NumClasses)
	}
	if len(c.LabelEncoder.Classes) != c.ModelConfig.NumClasses {
		return errors.Wrapf(ErrInvalidCheckpoint, "label encoder has %d classes, num_classes is %d", len(c.LabelEncoder.Classes), c.ModelConfig.NumClasses)
	}
	for i, label := range c.LabelEncoder.Classes {
		section, name, _ := strings.Cut(label, "|")
		if section == "" || name == "" {
			return errors.Wrapf(ErrInvalidCheckpoint, "class %d label %q is not section|name", i, label)
		}
	}
	return nil
}
