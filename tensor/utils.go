package tensor

import (
	"fmt"
)

// Reshape returns a new tensor with the same data but different shape
// The new shape must have the same total number of elements
func (t *Tensor) Reshape(newShape []int) (*Tensor, error) {
	shape := append([]int(nil), newShape...)
	newNumElems := 1
	negOneIdx := -1

	for i, dim := range shape {
		if dim < 0 {
			if dim != -1 {
				return nil, fmt.Errorf("negative dimension %d at index %d is not allowed (only -1 is allowed)", dim, i)
			}
			if negOneIdx >= 0 {
				return nil, fmt.Errorf("only one dimension can be -1")
			}
			negOneIdx = i
		} else if dim == 0 {
			return nil, fmt.Errorf("dimension %d cannot be 0", i)
		} else {
			newNumElems *= dim
		}
	}

	// If there's a -1, calculate what it should be
	if negOneIdx >= 0 {
		if t.NumElems%newNumElems != 0 {
			return nil, fmt.Errorf("cannot reshape tensor of size %d into shape with -1: size must be divisible by %d", t.NumElems, newNumElems)
		}
		shape[negOneIdx] = t.NumElems / newNumElems
		newNumElems = t.NumElems
	}

	if newNumElems != t.NumElems {
		return nil, fmt.Errorf("cannot reshape tensor of size %d into shape %v (size %d)", t.NumElems, shape, newNumElems)
	}

	// Share the same underlying data, drop the gradient
	return &Tensor{
		Shape:        shape,
		Strides:      calculateStrides(shape),
		DType:        t.DType,
		Device:       t.Device,
		Data:         t.Data,
		NumElems:     t.NumElems,
		requiresGrad: t.requiresGrad,
	}, nil
}

// Flatten returns a 1-D view of the tensor.
func (t *Tensor) Flatten() (*Tensor, error) {
	return t.Reshape([]int{t.NumElems})
}

func (t *Tensor) Clone() (*Tensor, error) {
	clone := &Tensor{
		Shape:        make([]int, len(t.Shape)),
		Strides:      make([]int, len(t.Strides)),
		DType:        t.DType,
		Device:       t.Device,
		NumElems:     t.NumElems,
		requiresGrad: t.requiresGrad,
	}

	copy(clone.Shape, t.Shape)
	copy(clone.Strides, t.Strides)

	if t.Data == nil {
		return nil, fmt.Errorf("tensor has nil data")
	}

	switch t.DType {
	case Float32:
		data := t.Data.([]float32)
		cloneData := make([]float32, len(data))
		copy(cloneData, data)
		clone.Data = cloneData
	case Int32:
		data := t.Data.([]int32)
		cloneData := make([]int32, len(data))
		copy(cloneData, data)
		clone.Data = cloneData
	default:
		return nil, fmt.Errorf("unsupported dtype for Clone: %s", t.DType)
	}

	return clone, nil
}

func (t *Tensor) GetFloat32Data() ([]float32, error) {
	if t.DType != Float32 {
		return nil, fmt.Errorf("tensor dtype is %s, not Float32", t.DType)
	}
	return t.Data.([]float32), nil
}

func (t *Tensor) GetInt32Data() ([]int32, error) {
	if t.DType != Int32 {
		return nil, fmt.Errorf("tensor dtype is %s, not Int32", t.DType)
	}
	return t.Data.([]int32), nil
}

// Item returns the single value of a one-element tensor as float64.
func (t *Tensor) Item() (float64, error) {
	if t.NumElems != 1 {
		return 0, fmt.Errorf("item() can only be called on tensors with exactly one element, got %d", t.NumElems)
	}

	switch t.DType {
	case Float32:
		return float64(t.Data.([]float32)[0]), nil
	case Int32:
		return float64(t.Data.([]int32)[0]), nil
	default:
		return 0, fmt.Errorf("unsupported dtype for Item: %s", t.DType)
	}
}

// Rows returns rows of the b-th entry of a [B, T, F] Float32 tensor as T x F
// slices sharing the tensor's memory, truncated to at most limit rows.
func (t *Tensor) Rows(b, limit int) ([][]float32, error) {
	if t.DType != Float32 || len(t.Shape) != 3 {
		return nil, fmt.Errorf("rows requires a 3-D Float32 tensor, got %s", t)
	}
	if b < 0 || b >= t.Shape[0] {
		return nil, fmt.Errorf("batch index %d out of bounds (size %d)", b, t.Shape[0])
	}

	frames, width := t.Shape[1], t.Shape[2]
	if limit > 0 && limit < frames {
		frames = limit
	}

	data := t.Data.([]float32)
	rows := make([][]float32, frames)
	for i := range rows {
		offset := b*t.Strides[0] + i*width
		rows[i] = data[offset : offset+width]
	}
	return rows, nil
}

// Row returns the b-th entry of a [B, T] tensor, truncated to at most limit values.
func (t *Tensor) Row(b, limit int) (interface{}, error) {
	if len(t.Shape) != 2 {
		return nil, fmt.Errorf("row requires a 2-D tensor, got %s", t)
	}
	if b < 0 || b >= t.Shape[0] {
		return nil, fmt.Errorf("batch index %d out of bounds (size %d)", b, t.Shape[0])
	}

	n := t.Shape[1]
	if limit > 0 && limit < n {
		n = limit
	}
	offset := b * t.Strides[0]

	switch t.DType {
	case Float32:
		return t.Data.([]float32)[offset : offset+n], nil
	case Int32:
		return t.Data.([]int32)[offset : offset+n], nil
	default:
		return nil, fmt.Errorf("unsupported dtype for Row: %s", t.DType)
	}
}

func (t *Tensor) Dim() int {
	return len(t.Shape)
}

func (t *Tensor) Equal(other *Tensor) (bool, error) {
	if t.DType != other.DType || !sameShape(t.Shape, other.Shape) {
		return false, nil
	}

	switch t.DType {
	case Float32:
		data1 := t.Data.([]float32)
		data2 := other.Data.([]float32)
		for i := 0; i < t.NumElems; i++ {
			if data1[i] != data2[i] {
				return false, nil
			}
		}
	case Int32:
		data1 := t.Data.([]int32)
		data2 := other.Data.([]int32)
		for i := 0; i < t.NumElems; i++ {
			if data1[i] != data2[i] {
				return false, nil
			}
		}
	default:
		return false, fmt.Errorf("unsupported dtype for Equal: %s", t.DType)
	}

	return true, nil
}

// ToDevice returns the tensor labelled for device. Tensors already on the
// device are returned as is, others are copied.
func (t *Tensor) ToDevice(device DeviceType) (*Tensor, error) {
	if device != CPU && device != GPU {
		return nil, fmt.Errorf("invalid device type: %v (valid types: CPU, GPU)", device)
	}

	if t.Device == device {
		return t, nil
	}

	result, err := t.Clone()
	if err != nil {
		return nil, err
	}
	result.Device = device
	return result, nil
}

func ZeroGrad(tensors []*Tensor) {
	for _, t := range tensors {
		if t.requiresGrad && t.grad != nil {
			data := t.grad.Data.([]float32)
			for i := range data {
				data[i] = 0
			}
		}
	}
}

// AccumulateGrad adds delta to the tensor's gradient, allocating it on first use.
func (t *Tensor) AccumulateGrad(delta []float32) error {
	if t.DType != Float32 {
		return fmt.Errorf("gradients require a Float32 tensor, got %s", t.DType)
	}
	if len(delta) != t.NumElems {
		return fmt.Errorf("gradient length %d does not match tensor size %d", len(delta), t.NumElems)
	}

	if t.grad == nil {
		grad, err := Zeros(t.Shape, Float32, t.Device)
		if err != nil {
			return err
		}
		t.grad = grad
	}

	data := t.grad.Data.([]float32)
	for i, d := range delta {
		data[i] += d
	}
	return nil
}
