package tensor

import (
	"fmt"
	"math"
)

// Tensor is a dense float32 array in row-major NHWC order.
type Tensor struct {
	Shape []int
	Data  []float32
}

func New(shape ...int) *Tensor {
	return &Tensor{
		Shape: append([]int(nil), shape...),
		Data:  make([]float32, size(shape)),
	}
}

func FromData(shape []int, data []float32) (*Tensor, error) {
	if want := size(shape); want != len(data) {
		return nil, fmt.Errorf("shape %v needs %d values, got %d", shape, want, len(data))
	}
	return &Tensor{Shape: append([]int(nil), shape...), Data: data}, nil
}

func (t *Tensor) Len() int {
	return len(t.Data)
}

// Shape64 returns the shape in the form onnxruntime expects.
func (t *Tensor) Shape64() []int64 {
	out := make([]int64, len(t.Shape))
	for i, d := range t.Shape {
		out[i] = int64(d)
	}
	return out
}

// SameShape reports whether t and o have identical dimensions.
func (t *Tensor) SameShape(o *Tensor) bool {
	if t == nil || o == nil || len(t.Shape) != len(o.Shape) {
		return false
	}
	for i := range t.Shape {
		if t.Shape[i] != o.Shape[i] {
			return false
		}
	}
	return true
}

// HWC returns height, width and channels of a single-batch NHWC tensor.
func (t *Tensor) HWC() (h, w, c int, err error) {
	if len(t.Shape) != 4 || t.Shape[0] != 1 {
		return 0, 0, 0, fmt.Errorf("expected shape (1,H,W,C), got %v", t.Shape)
	}
	return t.Shape[1], t.Shape[2], t.Shape[3], nil
}

// Argmax returns the index of the largest value. Exact ties resolve to the
// lowest index. NaN entries never win. Returns -1 for an empty slice.
func Argmax(v []float32) int {
	best := -1
	for i, x := range v {
		if math.IsNaN(float64(x)) {
			continue
		}
		if best < 0 || x > v[best] {
			best = i
		}
	}
	return best
}

func size(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}
