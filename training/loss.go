package training

import (
	"math"

	"github.com/pkg/errors"

	"github.com/tsawler/go-forward/tensor"
)

// MaskedLoss reduces an elementwise loss over the valid prefix of padded
// sequences. Inputs are [B, T] or [B, T, F]; lengths is [B] Int32 and position
// t of row b is valid when t < lengths[b].
type MaskedLoss interface {
	Forward(predicted, target, lengths *tensor.Tensor) (*tensor.Tensor, error)
	Backward(predicted, target, lengths *tensor.Tensor) (*tensor.Tensor, error)
}

// MaskedL1 is the mean absolute error over valid positions.
type MaskedL1 struct{}

// MaskedL2 is the mean squared error over valid positions.
type MaskedL2 struct{}

// NewMaskedL1 creates a new masked absolute-error loss
func NewMaskedL1() *MaskedL1 {
	return &MaskedL1{}
}

// NewMaskedL2 creates a new masked squared-error loss
func NewMaskedL2() *MaskedL2 {
	return &MaskedL2{}
}

// Forward computes sum(mask * |pred - target|) / sum(mask)
func (l *MaskedL1) Forward(predicted, target, lengths *tensor.Tensor) (*tensor.Tensor, error) {
	return maskedReduce(predicted, target, lengths, func(d float64) float64 { return math.Abs(d) })
}

// Backward returns sign(pred - target) / sum(mask) on valid positions, zero elsewhere
func (l *MaskedL1) Backward(predicted, target, lengths *tensor.Tensor) (*tensor.Tensor, error) {
	return maskedGrad(predicted, target, lengths, func(d float64) float64 {
		switch {
		case d > 0:
			return 1
		case d < 0:
			return -1
		default:
			return 0
		}
	})
}

// Forward computes sum(mask * (pred - target)^2) / sum(mask)
func (l *MaskedL2) Forward(predicted, target, lengths *tensor.Tensor) (*tensor.Tensor, error) {
	return maskedReduce(predicted, target, lengths, func(d float64) float64 { return d * d })
}

// Backward returns 2 * (pred - target) / sum(mask) on valid positions, zero elsewhere
func (l *MaskedL2) Backward(predicted, target, lengths *tensor.Tensor) (*tensor.Tensor, error) {
	return maskedGrad(predicted, target, lengths, func(d float64) float64 { return 2 * d })
}

// maskLayout validates the operands and returns batch, time and feature sizes.
func maskLayout(predicted, target, lengths *tensor.Tensor) (int, int, int, error) {
	if predicted.DType != tensor.Float32 || target.DType != tensor.Float32 {
		return 0, 0, 0, errors.New("predicted and target tensors must be Float32")
	}
	if lengths.DType != tensor.Int32 {
		return 0, 0, 0, errors.New("lengths tensor must be Int32")
	}
	if len(predicted.Shape) != len(target.Shape) {
		return 0, 0, 0, errors.Errorf("predicted and target tensors must have the same shape: %v vs %v", predicted.Shape, target.Shape)
	}
	for i, dim := range predicted.Shape {
		if dim != target.Shape[i] {
			return 0, 0, 0, errors.Errorf("predicted and target tensors must have the same shape: %v vs %v", predicted.Shape, target.Shape)
		}
	}

	var batch, steps, features int
	switch len(predicted.Shape) {
	case 2:
		batch, steps, features = predicted.Shape[0], predicted.Shape[1], 1
	case 3:
		batch, steps, features = predicted.Shape[0], predicted.Shape[1], predicted.Shape[2]
	default:
		return 0, 0, 0, errors.Errorf("masked loss expects [B, T] or [B, T, F] inputs, got %v", predicted.Shape)
	}

	if lengths.NumElems != batch {
		return 0, 0, 0, errors.Errorf("lengths has %d entries for batch size %d", lengths.NumElems, batch)
	}
	return batch, steps, features, nil
}

// validSteps clamps a row length to the padded time dimension.
func validSteps(length int32, steps int) int {
	n := int(length)
	if n > steps {
		return steps
	}
	if n < 0 {
		return 0
	}
	return n
}

func maskedReduce(predicted, target, lengths *tensor.Tensor, elem func(d float64) float64) (*tensor.Tensor, error) {
	batch, steps, features, err := maskLayout(predicted, target, lengths)
	if err != nil {
		return nil, err
	}

	pred := predicted.Data.([]float32)
	tgt := target.Data.([]float32)
	lens := lengths.Data.([]int32)

	var sum float64
	var count int
	for b := 0; b < batch; b++ {
		valid := validSteps(lens[b], steps)
		row := b * steps * features
		for i := row; i < row+valid*features; i++ {
			sum += elem(float64(pred[i]) - float64(tgt[i]))
		}
		count += valid * features
	}

	// count == 0 is a data precondition violation and yields NaN
	loss := sum / float64(count)
	return tensor.NewTensor([]int{1}, tensor.Float32, predicted.Device, []float32{float32(loss)})
}

func maskedGrad(predicted, target, lengths *tensor.Tensor, elem func(d float64) float64) (*tensor.Tensor, error) {
	batch, steps, features, err := maskLayout(predicted, target, lengths)
	if err != nil {
		return nil, err
	}

	pred := predicted.Data.([]float32)
	tgt := target.Data.([]float32)
	lens := lengths.Data.([]int32)

	count := 0
	for b := 0; b < batch; b++ {
		count += validSteps(lens[b], steps) * features
	}

	grad := make([]float32, predicted.NumElems)
	for b := 0; b < batch; b++ {
		valid := validSteps(lens[b], steps)
		row := b * steps * features
		for i := row; i < row+valid*features; i++ {
			grad[i] = float32(elem(float64(pred[i])-float64(tgt[i])) / float64(count))
		}
	}

	return tensor.NewTensor(predicted.Shape, tensor.Float32, predicted.Device, grad)
}
