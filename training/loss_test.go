package training

import (
	"math"
	"testing"

	"github.com/tsawler/go-forward/tensor"
)

func mustTensor(t *testing.T, shape []int, dtype tensor.DType, data interface{}) *tensor.Tensor {
	t.Helper()
	tt, err := tensor.NewTensor(shape, dtype, tensor.CPU, data)
	if err != nil {
		t.Fatalf("Failed to create tensor: %v", err)
	}
	return tt
}

func lossValue(t *testing.T, l MaskedLoss, pred, target, lengths *tensor.Tensor) float64 {
	t.Helper()
	out, err := l.Forward(pred, target, lengths)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	v, err := out.Item()
	if err != nil {
		t.Fatalf("Item failed: %v", err)
	}
	return v
}

func TestMaskedLossAllValidEqualsMean(t *testing.T) {
	pred := mustTensor(t, []int{2, 3, 2}, tensor.Float32, []float32{
		1, 2, 3, 4, 5, 6,
		-1, -2, -3, -4, -5, -6,
	})
	target := mustTensor(t, []int{2, 3, 2}, tensor.Float32, []float32{
		0, 0, 1, 1, 2, 2,
		0, 0, 0, 0, 0, 0,
	})
	lengths := mustTensor(t, []int{2}, tensor.Int32, []int32{3, 3})

	p := pred.Data.([]float32)
	q := target.Data.([]float32)
	var absSum, sqSum float64
	for i := range p {
		d := float64(p[i] - q[i])
		absSum += math.Abs(d)
		sqSum += d * d
	}
	n := float64(len(p))

	tests := []struct {
		name string
		loss MaskedLoss
		want float64
	}{
		{"L1", NewMaskedL1(), absSum / n},
		{"L2", NewMaskedL2(), sqSum / n},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := lossValue(t, tt.loss, pred, target, lengths)
			if math.Abs(got-tt.want) > 1e-5 {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestMaskedLossIgnoresPadding(t *testing.T) {
	pred := mustTensor(t, []int{1, 4}, tensor.Float32, []float32{1, 1, 1, 999})
	target := mustTensor(t, []int{1, 4}, tensor.Float32, []float32{1, 1, 1, 0})
	lengths := mustTensor(t, []int{1}, tensor.Int32, []int32{3})

	if got := lossValue(t, NewMaskedL1(), pred, target, lengths); got != 0 {
		t.Errorf("Expected L1 0 with padded sentinel, got %v", got)
	}
	if got := lossValue(t, NewMaskedL2(), pred, target, lengths); got != 0 {
		t.Errorf("Expected L2 0 with padded sentinel, got %v", got)
	}
}

func TestMaskedLossValues(t *testing.T) {
	pred := mustTensor(t, []int{2, 3}, tensor.Float32, []float32{1, 2, 3, 4, 5, 6})
	target := mustTensor(t, []int{2, 3}, tensor.Float32, []float32{0, 0, 0, 0, 0, 0})
	lengths := mustTensor(t, []int{2}, tensor.Int32, []int32{2, 1})

	// valid: 1, 2 and 4
	if got := lossValue(t, NewMaskedL1(), pred, target, lengths); math.Abs(got-7.0/3) > 1e-6 {
		t.Errorf("Expected L1 %v, got %v", 7.0/3, got)
	}
	if got := lossValue(t, NewMaskedL2(), pred, target, lengths); math.Abs(got-21.0/3) > 1e-5 {
		t.Errorf("Expected L2 %v, got %v", 21.0/3, got)
	}

	t.Run("LengthLongerThanSequence", func(t *testing.T) {
		long := mustTensor(t, []int{2}, tensor.Int32, []int32{10, 3})
		got := lossValue(t, NewMaskedL1(), pred, target, long)
		if math.Abs(got-21.0/6) > 1e-6 {
			t.Errorf("Expected %v, got %v", 21.0/6, got)
		}
	})

	t.Run("NoValidPositions", func(t *testing.T) {
		zero := mustTensor(t, []int{2}, tensor.Int32, []int32{0, 0})
		if got := lossValue(t, NewMaskedL1(), pred, target, zero); !math.IsNaN(got) {
			t.Errorf("Expected NaN without valid positions, got %v", got)
		}
	})
}

func TestMaskedLossGradients(t *testing.T) {
	pred := mustTensor(t, []int{1, 4}, tensor.Float32, []float32{2, -1, 0.5, 7})
	target := mustTensor(t, []int{1, 4}, tensor.Float32, []float32{1, 1, 0.5, 0})
	lengths := mustTensor(t, []int{1}, tensor.Int32, []int32{3})

	tests := []struct {
		name string
		loss MaskedLoss
		want []float32
	}{
		{"L1", NewMaskedL1(), []float32{1.0 / 3, -1.0 / 3, 0, 0}},
		{"L2", NewMaskedL2(), []float32{2.0 / 3, -4.0 / 3, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			grad, err := tt.loss.Backward(pred, target, lengths)
			if err != nil {
				t.Fatalf("Backward failed: %v", err)
			}
			got := grad.Data.([]float32)
			for i := range tt.want {
				if math.Abs(float64(got[i]-tt.want[i])) > 1e-6 {
					t.Errorf("Index %d: expected %v, got %v", i, tt.want[i], got[i])
				}
			}
		})
	}
}

func TestMaskedLossErrors(t *testing.T) {
	pred := mustTensor(t, []int{1, 4}, tensor.Float32, []float32{1, 2, 3, 4})
	lengths := mustTensor(t, []int{1}, tensor.Int32, []int32{4})
	l1 := NewMaskedL1()

	tests := []struct {
		name    string
		target  *tensor.Tensor
		lengths *tensor.Tensor
	}{
		{"ShapeMismatch", mustTensor(t, []int{2, 2}, tensor.Float32, []float32{1, 2, 3, 4}), lengths},
		{"FloatLengths", pred, mustTensor(t, []int{1}, tensor.Float32, []float32{4})},
		{"WrongBatch", pred, mustTensor(t, []int{2}, tensor.Int32, []int32{4, 4})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := l1.Forward(pred, tt.target, tt.lengths); err == nil {
				t.Error("Expected error from Forward")
			}
			if _, err := l1.Backward(pred, tt.target, tt.lengths); err == nil {
				t.Error("Expected error from Backward")
			}
		})
	}

	flat := mustTensor(t, []int{4}, tensor.Float32, []float32{1, 2, 3, 4})
	if _, err := l1.Forward(flat, flat, lengths); err == nil {
		t.Error("Expected error for 1-D input")
	}
}
