package training

import (
	"github.com/tsawler/go-forward/tensor"
)

// ForwardInput carries the teacher-forcing inputs of one forward pass.
type ForwardInput struct {
	Tokens    *tensor.Tensor // [B, Tx] Int32
	Mel       *tensor.Tensor // [B, Tm, F] Float32
	Durations *tensor.Tensor // [B, Tx] Float32
	MelLens   *tensor.Tensor // [B] Int32
	Pitch     *tensor.Tensor // [B, Tx] Float32
	Silence   *tensor.Tensor // [B, Tx] Float32
}

// Prediction holds the five output heads of the acoustic model. The same type
// carries gradients with respect to each head on the way back.
type Prediction struct {
	MelPre   *tensor.Tensor // [B, Tm, F]
	MelPost  *tensor.Tensor // [B, Tm, F]
	Duration *tensor.Tensor // [B, Tx]
	Pitch    *tensor.Tensor // [B, Tx]
	Silence  *tensor.Tensor // [B, Tx]
}

// Model is the multi-head acoustic model being trained. Its internals are
// opaque to the trainer.
type Model interface {
	// Forward runs a teacher-forced pass.
	Forward(in *ForwardInput) (*Prediction, error)

	// Backward accumulates parameter gradients from gradients with respect
	// to the outputs of the most recent Forward call.
	Backward(grad *Prediction) error

	// Generate runs free inference from a single token sequence. The result
	// has batch size 1.
	Generate(tokens []int32) (*Prediction, error)

	Parameters() []*tensor.Tensor // Returns trainable parameters
	GlobalStep() *GlobalStep      // Persisted optimizer-update counter
	Train()                       // Sets model to training mode
	Eval()                        // Sets model to evaluation mode
	IsTraining() bool             // Returns true if in training mode
}

// Optimizer interface defines the methods that all optimizers must implement
type Optimizer interface {
	Step() error      // Updates model parameters based on gradients
	ZeroGrad()        // Resets gradients to zero for all parameters
	GetLR() float64   // Gets current learning rate
	SetLR(lr float64) // Overrides the learning rate of every parameter group
}

// modelDevice is the device of the model's first parameter, CPU when the model has none.
func modelDevice(model Model) tensor.DeviceType {
	params := model.Parameters()
	if len(params) == 0 {
		return tensor.CPU
	}
	return params[0].Device
}
