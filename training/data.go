package training

import (
	"github.com/pkg/errors"

	"github.com/tsawler/go-forward/tensor"
)

// Batch is one padded training batch. Lengths describe the valid prefix of
// each padded row.
type Batch struct {
	Tokens    *tensor.Tensor // [B, Tx] Int32
	Mel       *tensor.Tensor // [B, Tm, F] Float32
	IDs       []string
	TokenLens *tensor.Tensor // [B] Int32
	MelLens   *tensor.Tensor // [B] Int32
	Durations *tensor.Tensor // [B, Tx] Float32
	Pitch     *tensor.Tensor // [B, Tx] Float32
	Silence   *tensor.Tensor // [B, Tx] Float32
}

// Size returns the batch dimension.
func (b *Batch) Size() int {
	return b.Tokens.Shape[0]
}

// ToDevice returns a copy of the batch with every tensor on device.
func (b *Batch) ToDevice(device tensor.DeviceType) (*Batch, error) {
	moved := &Batch{IDs: b.IDs}
	pairs := []struct {
		src *tensor.Tensor
		dst **tensor.Tensor
	}{
		{b.Tokens, &moved.Tokens},
		{b.Mel, &moved.Mel},
		{b.TokenLens, &moved.TokenLens},
		{b.MelLens, &moved.MelLens},
		{b.Durations, &moved.Durations},
		{b.Pitch, &moved.Pitch},
		{b.Silence, &moved.Silence},
	}
	for _, p := range pairs {
		t, err := p.src.ToDevice(device)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to move batch to %s", device)
		}
		*p.dst = t
	}
	return moved, nil
}

// forwardInput builds the teacher-forcing inputs for the model.
func (b *Batch) forwardInput() *ForwardInput {
	return &ForwardInput{
		Tokens:    b.Tokens,
		Mel:       b.Mel,
		Durations: b.Durations,
		MelLens:   b.MelLens,
		Pitch:     b.Pitch,
		Silence:   b.Silence,
	}
}

// DataSource yields the batches of one epoch.
type DataSource interface {
	Len() int        // Number of batches per epoch
	NumSamples() int // Number of underlying samples
	Reset()          // Rewinds to the start of a new epoch
	Next() (*Batch, error)
}

// DatasetFunc builds a fresh train/validation pair for the given batch size.
type DatasetFunc func(batchSize int) (train DataSource, val DataSource, err error)
