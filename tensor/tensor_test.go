package tensor

import (
	"math"
	"testing"
)

func TestNewTensor(t *testing.T) {
	t.Run("Float32 from slice", func(t *testing.T) {
		tensor, err := NewTensor([]int{2, 3}, Float32, CPU, []float32{1, 2, 3, 4, 5, 6})
		if err != nil {
			t.Fatalf("Failed to create tensor: %v", err)
		}
		if tensor.NumElems != 6 {
			t.Errorf("Expected 6 elements, got %d", tensor.NumElems)
		}
		if tensor.Strides[0] != 3 || tensor.Strides[1] != 1 {
			t.Errorf("Unexpected strides %v", tensor.Strides)
		}
	})

	t.Run("Length mismatch", func(t *testing.T) {
		if _, err := NewTensor([]int{2, 2}, Float32, CPU, []float32{1, 2, 3}); err == nil {
			t.Error("Expected error for mismatched data length")
		}
	})

	t.Run("Invalid shape", func(t *testing.T) {
		if _, err := NewTensor([]int{2, 0}, Float32, CPU, nil); err == nil {
			t.Error("Expected error for zero dimension")
		}
	})

	t.Run("Scalar", func(t *testing.T) {
		scalar := FromScalar(2.5, Float32, CPU)
		value, err := scalar.Item()
		if err != nil {
			t.Fatalf("Item failed: %v", err)
		}
		if value != 2.5 {
			t.Errorf("Expected 2.5, got %f", value)
		}
	})
}

func TestReshapeAndFlatten(t *testing.T) {
	tensor, _ := NewTensor([]int{2, 3}, Float32, CPU, []float32{1, 2, 3, 4, 5, 6})

	reshaped, err := tensor.Reshape([]int{3, -1})
	if err != nil {
		t.Fatalf("Reshape failed: %v", err)
	}
	if reshaped.Shape[0] != 3 || reshaped.Shape[1] != 2 {
		t.Errorf("Expected shape [3 2], got %v", reshaped.Shape)
	}

	flat, err := tensor.Flatten()
	if err != nil {
		t.Fatalf("Flatten failed: %v", err)
	}
	if flat.Dim() != 1 || flat.Shape[0] != 6 {
		t.Errorf("Expected shape [6], got %v", flat.Shape)
	}

	if _, err := tensor.Reshape([]int{4, 2}); err == nil {
		t.Error("Expected error for incompatible reshape")
	}
}

func TestElementwiseOperations(t *testing.T) {
	a, _ := NewTensor([]int{2, 2}, Float32, CPU, []float32{1, 2, 3, 4})
	b, _ := NewTensor([]int{2, 2}, Float32, CPU, []float32{4, 3, 2, 1})

	tests := []struct {
		name     string
		op       func(t1, t2 *Tensor) (*Tensor, error)
		expected []float32
	}{
		{"Add", Add, []float32{5, 5, 5, 5}},
		{"Sub", Sub, []float32{-3, -1, 1, 3}},
		{"Mul", Mul, []float32{4, 6, 6, 4}},
		{"Div", Div, []float32{0.25, 2.0 / 3.0, 1.5, 4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tt.op(a, b)
			if err != nil {
				t.Fatalf("%s failed: %v", tt.name, err)
			}
			data := result.Data.([]float32)
			for i, expected := range tt.expected {
				if math.Abs(float64(data[i]-expected)) > 1e-6 {
					t.Errorf("Element %d: expected %f, got %f", i, expected, data[i])
				}
			}
		})
	}

	t.Run("Scalar broadcast", func(t *testing.T) {
		result, err := Mul(a, FromScalar(0.5, Float32, CPU))
		if err != nil {
			t.Fatalf("Mul with scalar failed: %v", err)
		}
		if result.Data.([]float32)[3] != 2 {
			t.Errorf("Expected 2, got %f", result.Data.([]float32)[3])
		}
	})

	t.Run("Device mismatch", func(t *testing.T) {
		gpu, _ := b.ToDevice(GPU)
		if _, err := Add(a, gpu); err == nil {
			t.Error("Expected error for device mismatch")
		}
	})
}

func TestConcat(t *testing.T) {
	a, _ := NewTensor([]int{2, 2}, Float32, CPU, []float32{1, 2, 3, 4})
	b, _ := NewTensor([]int{3}, Float32, CPU, []float32{5, 6, 7})

	result, err := Concat([]*Tensor{a, b})
	if err != nil {
		t.Fatalf("Concat failed: %v", err)
	}
	if result.NumElems != 7 {
		t.Fatalf("Expected 7 elements, got %d", result.NumElems)
	}
	for i, v := range result.Data.([]float32) {
		if v != float32(i+1) {
			t.Errorf("Element %d: expected %d, got %f", i, i+1, v)
		}
	}

	if _, err := Concat(nil); err == nil {
		t.Error("Expected error for empty concat")
	}
}

func TestRows(t *testing.T) {
	data := make([]float32, 2*4*3)
	for i := range data {
		data[i] = float32(i)
	}
	mel, _ := NewTensor([]int{2, 4, 3}, Float32, CPU, data)

	rows, err := mel.Rows(1, 2)
	if err != nil {
		t.Fatalf("Rows failed: %v", err)
	}
	if len(rows) != 2 || len(rows[0]) != 3 {
		t.Fatalf("Expected 2x3 rows, got %dx%d", len(rows), len(rows[0]))
	}
	if rows[0][0] != 12 || rows[1][2] != 17 {
		t.Errorf("Unexpected row contents %v", rows)
	}

	tokens, _ := NewTensor([]int{2, 3}, Int32, CPU, []int32{1, 2, 3, 4, 5, 6})
	row, err := tokens.Row(1, 2)
	if err != nil {
		t.Fatalf("Row failed: %v", err)
	}
	ids := row.([]int32)
	if len(ids) != 2 || ids[0] != 4 || ids[1] != 5 {
		t.Errorf("Expected [4 5], got %v", ids)
	}
}

func TestGradients(t *testing.T) {
	param, _ := NewTensor([]int{3}, Float32, CPU, []float32{1, 2, 3})
	param.SetRequiresGrad(true)

	if err := param.AccumulateGrad([]float32{1, 1, 1}); err != nil {
		t.Fatalf("AccumulateGrad failed: %v", err)
	}
	if err := param.AccumulateGrad([]float32{0.5, 0.5, 0.5}); err != nil {
		t.Fatalf("AccumulateGrad failed: %v", err)
	}
	if g := param.Grad().Data.([]float32)[0]; g != 1.5 {
		t.Errorf("Expected accumulated gradient 1.5, got %f", g)
	}

	ZeroGrad([]*Tensor{param})
	for i, g := range param.Grad().Data.([]float32) {
		if g != 0 {
			t.Errorf("Gradient %d not cleared: %f", i, g)
		}
	}

	if err := param.AccumulateGrad([]float32{1}); err == nil {
		t.Error("Expected error for gradient length mismatch")
	}
}

func TestToDevice(t *testing.T) {
	cpu, _ := NewTensor([]int{2}, Float32, CPU, []float32{1, 2})

	same, err := cpu.ToDevice(CPU)
	if err != nil || same != cpu {
		t.Errorf("Expected same tensor for same device, err=%v", err)
	}

	gpu, err := cpu.ToDevice(GPU)
	if err != nil {
		t.Fatalf("ToDevice failed: %v", err)
	}
	if gpu.Device != GPU {
		t.Errorf("Expected GPU device, got %s", gpu.Device)
	}
	gpu.Data.([]float32)[0] = 42
	if cpu.Data.([]float32)[0] != 1 {
		t.Error("Device transfer must not alias source data")
	}
}
