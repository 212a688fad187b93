package fl

import (
	"fmt"
	"slices"
)

// Tensor is a dense row-major array of float64 values.
type Tensor struct {
	Shape []int     `json:"shape" cbor:"shape"`
	Data  []float64 `json:"data"  cbor:"data"`
}

func NewTensor(shape []int, data []float64) (Tensor, error) {
	t := Tensor{Shape: slices.Clone(shape), Data: slices.Clone(data)}
	if err := t.Validate(); err != nil {
		return Tensor{}, err
	}

	return t, nil
}

// Scalar returns a zero-dimensional tensor holding v.
func Scalar(v float64) Tensor {
	return Tensor{Shape: []int{}, Data: []float64{v}}
}

// Size returns the number of elements implied by the shape.
func (t Tensor) Size() int {
	n := 1
	for _, d := range t.Shape {
		n *= d
	}

	return n
}

func (t Tensor) Validate() error {
	for _, d := range t.Shape {
		if d < 0 {
			return fmt.Errorf("%w: negative dimension in %v", ErrInvalidTensor, t.Shape)
		}
	}
	if t.Size() != len(t.Data) {
		return fmt.Errorf("%w: shape %v wants %d values, got %d", ErrInvalidTensor, t.Shape, t.Size(), len(t.Data))
	}

	return nil
}

func (t Tensor) Clone() Tensor {
	return Tensor{Shape: slices.Clone(t.Shape), Data: slices.Clone(t.Data)}
}

func (t Tensor) zeros() Tensor {
	return Tensor{Shape: slices.Clone(t.Shape), Data: make([]float64, len(t.Data))}
}

// Parameters is an ordered set of tensors describing the shared model state.
// A Parameters value is never modified once it has been handed to a participant
// or published by the coordinator; every round produces a new value.
type Parameters struct {
	Tensors []Tensor `json:"tensors" cbor:"tensors"`
}

func NewParameters(tensors ...Tensor) Parameters {
	return Parameters{Tensors: tensors}
}

func (p Parameters) Len() int {
	return len(p.Tensors)
}

func (p Parameters) IsEmpty() bool {
	return len(p.Tensors) == 0
}

// Clone returns a deep copy of p.
func (p Parameters) Clone() Parameters {
	if p.Tensors == nil {
		return Parameters{}
	}
	out := make([]Tensor, len(p.Tensors))
	for i, t := range p.Tensors {
		out[i] = t.Clone()
	}

	return Parameters{Tensors: out}
}

func (p Parameters) Shapes() [][]int {
	shapes := make([][]int, len(p.Tensors))
	for i, t := range p.Tensors {
		shapes[i] = slices.Clone(t.Shape)
	}

	return shapes
}

// Validate checks that every tensor's data matches its shape.
func (p Parameters) Validate() error {
	for i, t := range p.Tensors {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("tensor %d: %w", i, err)
		}
	}

	return nil
}

// Conforms reports whether other has the same tensor count and shapes as p.
// The returned error wraps ErrShapeMismatch.
func (p Parameters) Conforms(other Parameters) error {
	if len(p.Tensors) != len(other.Tensors) {
		return fmt.Errorf("%w: expected %d tensors, got %d", ErrShapeMismatch, len(p.Tensors), len(other.Tensors))
	}
	for i := range p.Tensors {
		if !slices.Equal(p.Tensors[i].Shape, other.Tensors[i].Shape) {
			return fmt.Errorf("%w: tensor %d expected shape %v, got %v", ErrShapeMismatch, i, p.Tensors[i].Shape, other.Tensors[i].Shape)
		}
		if len(other.Tensors[i].Data) != len(p.Tensors[i].Data) {
			return fmt.Errorf("%w: tensor %d expected %d values, got %d", ErrShapeMismatch, i, len(p.Tensors[i].Data), len(other.Tensors[i].Data))
		}
	}

	return nil
}

func (p Parameters) zeros() Parameters {
	out := make([]Tensor, len(p.Tensors))
	for i, t := range p.Tensors {
		out[i] = t.zeros()
	}

	return Parameters{Tensors: out}
}
