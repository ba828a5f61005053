// Package nn implements neural network layers for the ResNet engine.
//
// This package provides building blocks for constructing convolutional networks:
//   - Capability interfaces: HasParameters, Module, Trainable, Stateful, ShapeInferer
//   - Parameter: Named learnable tensors
//   - Conv2D, BatchNorm2D, MaxPool2D, GlobalAvgPool2D, Linear, ReLU
//   - Sequential: Container for stacking layers
//
// Layers are generic over the backend; they validate shapes and delegate all
// numeric work to it.
package nn

import (
	"github.com/born-ml/resnet/internal/tensor"
)

// HasParameters is implemented by every component that owns learnable tensors.
//
// Parameters returns the owned parameters (including those of nested
// components) in a stable order. Components without parameters return nil.
type HasParameters[B tensor.Backend] interface {
	Parameters() []*Parameter[B]
}

// Module is the base interface for all neural network components.
//
// Modules can be composed to build complex architectures:
//
//	model := nn.NewSequential[Backend](
//	    nn.NewConv2D(3, 16, 3, 1, 1, false, src, backend),
//	    nn.NewReLU[Backend](),
//	)
//
// Type parameter B must satisfy the tensor.Backend interface.
type Module[B tensor.Backend] interface {
	// Forward computes the output of the module given an input tensor.
	//
	// Shape violations panic with *tensor.ShapeMismatchError.
	Forward(input *tensor.Tensor[B]) *tensor.Tensor[B]

	HasParameters[B]
}

// Trainable is implemented by components whose forward behavior depends on
// train/eval mode (batch normalization and anything containing it).
type Trainable interface {
	SetTraining(training bool)
}

// Stateful is implemented by components that serialize tensors.
//
// Keys are relative to the component; containers prefix child keys with
// the child's name and a dot.
type Stateful interface {
	StateDict() map[string]*tensor.RawTensor
	LoadStateDict(stateDict map[string]*tensor.RawTensor) error
}

// ShapeInferer is implemented by components that can compute their output
// shape from an input shape without running any numeric work.
type ShapeInferer interface {
	OutputShape(input tensor.Shape) (tensor.Shape, error)
}

// SetTraining switches m into training or eval mode if it is Trainable.
func SetTraining(m any, training bool) {
	if t, ok := m.(Trainable); ok {
		t.SetTraining(training)
	}
}

// CountParameters returns the total number of scalar values in params.
func CountParameters[B tensor.Backend](params []*Parameter[B]) int {
	n := 0
	for _, p := range params {
		n += p.NumElements()
	}
	return n
}
