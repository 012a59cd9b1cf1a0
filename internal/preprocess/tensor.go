package preprocess

import "fmt"

// Tensor is a float32 batch in NHWC layout.
type Tensor struct {
	Shape [4]int
	Data  []float32
}

// InputShape is the shape every classifier input must have.
var InputShape = [4]int{1, InputSize, InputSize, Channels}

// InputLen is the number of values in a tensor of InputShape.
const InputLen = InputSize * InputSize * Channels

// NewTensor wraps data as a tensor of InputShape.
func NewTensor(data []float32) (*Tensor, error) {
	t := &Tensor{Shape: InputShape, Data: data}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Tensor) Len() int {
	return t.Shape[0] * t.Shape[1] * t.Shape[2] * t.Shape[3]
}

// At returns the value at batch b, row y, column x, channel c.
func (t *Tensor) At(b, y, x, c int) float32 {
	return t.Data[((b*t.Shape[1]+y)*t.Shape[2]+x)*t.Shape[3]+c]
}

// Validate checks the tensor against InputShape.
func (t *Tensor) Validate() error {
	if t == nil {
		return fmt.Errorf("nil tensor")
	}
	if t.Shape != InputShape {
		return fmt.Errorf("tensor shape %v, expected %v", t.Shape, InputShape)
	}
	if len(t.Data) != t.Len() {
		return fmt.Errorf("tensor holds %d values, shape %v needs %d", len(t.Data), t.Shape, t.Len())
	}
	return nil
}

// Shape64 returns the shape as int64 values, the form inference runtimes take.
func (t *Tensor) Shape64() []int64 {
	out := make([]int64, len(t.Shape))
	for i, d := range t.Shape {
		out[i] = int64(d)
	}
	return out
}
