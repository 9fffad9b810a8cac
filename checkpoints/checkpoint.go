package checkpoints

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/tsawler/go-forward/tensor"
	"github.com/tsawler/go-forward/training"
)

// CheckpointFormat defines the serialization format
type CheckpointFormat int

const (
	FormatJSON CheckpointFormat = iota
	FormatProto
)

func (cf CheckpointFormat) String() string {
	switch cf {
	case FormatJSON:
		return "JSON"
	case FormatProto:
		return "Proto"
	default:
		return "Unknown"
	}
}

// Extension returns the file extension used for the format.
func (cf CheckpointFormat) Extension() string {
	switch cf {
	case FormatProto:
		return "pb"
	default:
		return "json"
	}
}

// Checkpoint represents model weights, optimizer state and training progress.
// A weights file leaves OptimizerState empty and an optimizer file leaves
// Weights empty.
type Checkpoint struct {
	Weights []WeightTensor `json:"weights,omitempty"`

	// Training state
	TrainingState TrainingState `json:"training_state"`

	// Optimizer state (if available)
	OptimizerState *training.OptimizerState `json:"optimizer_state,omitempty"`

	// Metadata
	Metadata CheckpointMetadata `json:"metadata"`
}

// WeightTensor represents a model parameter tensor with its data
type WeightTensor struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
}

// TrainingState captures the current training progress
type TrainingState struct {
	Step         int     `json:"step"`
	LearningRate float64 `json:"learning_rate"`
}

// CheckpointMetadata contains checkpoint metadata
type CheckpointMetadata struct {
	Version     string    `json:"version"`
	Framework   string    `json:"framework"`
	CreatedAt   time.Time `json:"created_at"`
	Description string    `json:"description,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
}

// CheckpointSaver handles saving model checkpoints in various formats
type CheckpointSaver struct {
	format CheckpointFormat
}

// NewCheckpointSaver creates a new checkpoint saver for the specified format
func NewCheckpointSaver(format CheckpointFormat) *CheckpointSaver {
	return &CheckpointSaver{
		format: format,
	}
}

// SaveCheckpoint writes checkpoint to path. The file is replaced atomically so
// an interrupted save never leaves a truncated checkpoint behind.
func (cs *CheckpointSaver) SaveCheckpoint(checkpoint *Checkpoint, path string) error {
	// Ensure metadata is set
	if checkpoint.Metadata.Framework == "" {
		checkpoint.Metadata.Framework = "go-forward"
		checkpoint.Metadata.Version = "1.0.0"
		checkpoint.Metadata.CreatedAt = time.Now()
	}

	var data []byte
	var err error
	switch cs.format {
	case FormatJSON:
		data, err = json.MarshalIndent(checkpoint, "", "  ")
	case FormatProto:
		data, err = marshalProto(checkpoint)
	default:
		return errors.Errorf("unsupported checkpoint format: %s", cs.format)
	}
	if err != nil {
		return errors.Wrap(err, "failed to encode checkpoint")
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return errors.Wrap(err, "failed to create checkpoint file")
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.Wrap(err, "failed to write checkpoint file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(err, "failed to close checkpoint file")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(err, "failed to move checkpoint into place")
	}
	return nil
}

// LoadCheckpoint loads a model checkpoint
func (cs *CheckpointSaver) LoadCheckpoint(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open checkpoint file")
	}

	var checkpoint Checkpoint
	switch cs.format {
	case FormatJSON:
		err = json.Unmarshal(data, &checkpoint)
	case FormatProto:
		err = unmarshalProto(data, &checkpoint)
	default:
		return nil, errors.Errorf("unsupported checkpoint format: %s", cs.format)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode checkpoint %s", path)
	}
	return &checkpoint, nil
}

// ExtractWeights copies parameter data out of the model's tensors.
func ExtractWeights(params []*tensor.Tensor) ([]WeightTensor, error) {
	weights := make([]WeightTensor, len(params))
	for i, p := range params {
		data, err := p.GetFloat32Data()
		if err != nil {
			return nil, errors.WithMessagef(err, "parameter %d", i)
		}
		weights[i] = WeightTensor{
			Name:  paramName(i),
			Shape: append([]int(nil), p.Shape...),
			Data:  append([]float32(nil), data...),
		}
	}
	return weights, nil
}

// LoadWeightsIntoTensors copies checkpoint weights into params by position.
// Counts and shapes must match exactly.
func LoadWeightsIntoTensors(weights []WeightTensor, params []*tensor.Tensor) error {
	if len(weights) != len(params) {
		return errors.Errorf("checkpoint has %d weight tensors, model has %d parameters", len(weights), len(params))
	}

	for i, w := range weights {
		p := params[i]
		if len(w.Shape) != len(p.Shape) {
			return errors.Errorf("%s: shape %v does not match parameter shape %v", w.Name, w.Shape, p.Shape)
		}
		for d := range w.Shape {
			if w.Shape[d] != p.Shape[d] {
				return errors.Errorf("%s: shape %v does not match parameter shape %v", w.Name, w.Shape, p.Shape)
			}
		}
		if err := p.SetData(append([]float32(nil), w.Data...)); err != nil {
			return errors.WithMessagef(err, "%s", w.Name)
		}
	}
	return nil
}

func paramName(i int) string {
	return fmt.Sprintf("param.%d", i)
}
