package tensor

import (
	"fmt"
	"math"
)

func checkCompatibility(t1, t2 *Tensor) error {
	if t1.DType != t2.DType {
		return fmt.Errorf("tensors must have same dtype: %s vs %s", t1.DType, t2.DType)
	}
	if t1.Device != t2.Device {
		return fmt.Errorf("tensors must be on same device: %s vs %s", t1.Device, t2.Device)
	}
	return nil
}

// broadcastShape allows equal shapes or a single-element operand on either side.
func broadcastShape(t1, t2 *Tensor) ([]int, error) {
	switch {
	case sameShape(t1.Shape, t2.Shape):
		return t1.Shape, nil
	case t2.NumElems == 1:
		return t1.Shape, nil
	case t1.NumElems == 1:
		return t2.Shape, nil
	default:
		return nil, fmt.Errorf("tensor shapes must match: %v vs %v", t1.Shape, t2.Shape)
	}
}

func elementwise(name string, t1, t2 *Tensor, f32 func(a, b float32) float32, i32 func(a, b int32) int32) (*Tensor, error) {
	if err := checkCompatibility(t1, t2); err != nil {
		return nil, err
	}

	outputShape, err := broadcastShape(t1, t2)
	if err != nil {
		return nil, err
	}

	result, err := Zeros(outputShape, t1.DType, t1.Device)
	if err != nil {
		return nil, err
	}

	index := func(t *Tensor, i int) int {
		if t.NumElems == 1 {
			return 0
		}
		return i
	}

	switch t1.DType {
	case Float32:
		data1 := t1.Data.([]float32)
		data2 := t2.Data.([]float32)
		resultData := result.Data.([]float32)
		for i := range resultData {
			resultData[i] = f32(data1[index(t1, i)], data2[index(t2, i)])
		}
	case Int32:
		if i32 == nil {
			return nil, fmt.Errorf("unsupported dtype for %s: %s", name, t1.DType)
		}
		data1 := t1.Data.([]int32)
		data2 := t2.Data.([]int32)
		resultData := result.Data.([]int32)
		for i := range resultData {
			resultData[i] = i32(data1[index(t1, i)], data2[index(t2, i)])
		}
	default:
		return nil, fmt.Errorf("unsupported dtype for %s: %s", name, t1.DType)
	}

	return result, nil
}

func Add(t1, t2 *Tensor) (*Tensor, error) {
	return elementwise("Add", t1, t2,
		func(a, b float32) float32 { return a + b },
		func(a, b int32) int32 { return a + b })
}

func Sub(t1, t2 *Tensor) (*Tensor, error) {
	return elementwise("Sub", t1, t2,
		func(a, b float32) float32 { return a - b },
		func(a, b int32) int32 { return a - b })
}

func Mul(t1, t2 *Tensor) (*Tensor, error) {
	return elementwise("Mul", t1, t2,
		func(a, b float32) float32 { return a * b },
		func(a, b int32) int32 { return a * b })
}

// Div has no Int32 form; integer division is never needed by the optimizers.
func Div(t1, t2 *Tensor) (*Tensor, error) {
	return elementwise("Div", t1, t2,
		func(a, b float32) float32 { return a / b },
		nil)
}

// Sqrt computes the square root of a tensor element-wise
func Sqrt(t *Tensor) (*Tensor, error) {
	if t.DType != Float32 {
		return nil, fmt.Errorf("sqrt only supports Float32 tensors")
	}

	data := t.Data.([]float32)
	result := make([]float32, len(data))

	for i, val := range data {
		if val < 0 {
			// Produce NaN for negative values instead of returning an error
			result[i] = float32(math.NaN())
		} else {
			result[i] = float32(math.Sqrt(float64(val)))
		}
	}

	return NewTensor(t.Shape, t.DType, t.Device, result)
}

// Concat joins the flattened contents of Float32 tensors into one 1-D tensor.
func Concat(tensors []*Tensor) (*Tensor, error) {
	if len(tensors) == 0 {
		return nil, fmt.Errorf("cannot concatenate zero tensors")
	}

	total := 0
	for i, t := range tensors {
		if t.DType != Float32 {
			return nil, fmt.Errorf("concat only supports Float32 tensors, tensor %d is %s", i, t.DType)
		}
		if t.Device != tensors[0].Device {
			return nil, fmt.Errorf("tensors must be on same device: %s vs %s", tensors[0].Device, t.Device)
		}
		total += t.NumElems
	}

	data := make([]float32, 0, total)
	for _, t := range tensors {
		data = append(data, t.Data.([]float32)...)
	}

	return NewTensor([]int{total}, Float32, tensors[0].Device, data)
}
