package model

import (
	"context"
	"errors"
)

// ErrClosed is returned by Forward after the session has been released.
var ErrClosed = errors.New("model session closed")

// Tensor is a dense float32 buffer with its logical shape.
type Tensor struct {
	Shape []int64
	Data  []float32
}

// Len returns the element count implied by the shape.
func (t Tensor) Len() int {
	if len(t.Shape) == 0 {
		return 0
	}
	n := int64(1)
	for _, d := range t.Shape {
		n *= d
	}
	return int(n)
}

// Engine turns an opaque model artifact into a runnable session.
type Engine interface {
	Load(artifact []byte) (Session, error)
}

// Session is a loaded model. Forward returns one raw score per output class.
type Session interface {
	Forward(ctx context.Context, input Tensor) ([]float32, error)
	Close() error
}

// IOInfo describes the first input and output of a loaded model.
// InputShape is the declared shape, with symbolic dimensions left negative;
// OutputShape is concrete for a batch of one.
type IOInfo struct {
	InputName   string  `json:"input_name"`
	InputShape  []int64 `json:"input_shape"`
	OutputName  string  `json:"output_name"`
	OutputShape []int64 `json:"output_shape"`
}
