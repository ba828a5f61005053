package nn

import (
	"fmt"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"

	"github.com/born-ml/resnet/internal/tensor"
)

// MaxPool2D is a 2D max pooling layer.
//
// Max pooling reduces spatial dimensions by taking the maximum value in each
// window. Windows may overlap and may extend into implicit padding; padded
// cells never win. MaxPool2D has no learnable parameters.
//
// Input shape:  [batch, channels, height, width]
// Output shape: [batch, channels, out_height, out_width]
//
// Where:
//
//	out_height = (height + 2*padding - kernelSize) / stride + 1
//	out_width  = (width + 2*padding - kernelSize) / stride + 1
//
// Example:
//
//	// ResNet stem pooling: 3x3 window, stride 2, padding 1
//	pool := nn.NewMaxPool2D(3, 2, 1, backend)
//	output := pool.Forward(input) // [N, 64, 112, 112] -> [N, 64, 56, 56]
type MaxPool2D[B tensor.Backend] struct {
	kernelSize int
	stride     int
	padding    int
	backend    B
}

// NewMaxPool2D creates a new 2D max pooling layer.
func NewMaxPool2D[B tensor.Backend](kernelSize, stride, padding int, backend B) *MaxPool2D[B] {
	if kernelSize <= 0 {
		exceptions.Panicf("maxpool2d: invalid kernel size %d", kernelSize)
	}
	if stride <= 0 {
		exceptions.Panicf("maxpool2d: invalid stride %d", stride)
	}
	if padding < 0 || padding > kernelSize/2 {
		exceptions.Panicf("maxpool2d: padding %d must be in [0, %d]", padding, kernelSize/2)
	}

	return &MaxPool2D[B]{
		kernelSize: kernelSize,
		stride:     stride,
		padding:    padding,
		backend:    backend,
	}
}

// Forward performs the forward pass.
func (m *MaxPool2D[B]) Forward(input *tensor.Tensor[B]) *tensor.Tensor[B] {
	if len(input.Shape()) != 4 {
		exceptions.Panicf("maxpool2d: expected 4D input [N,C,H,W], got %dD", len(input.Shape()))
	}
	return tensor.New(m.backend.MaxPool2D(input.Raw(), m.kernelSize, m.stride, m.padding), m.backend)
}

// OutputShape infers the output shape for an input shape.
func (m *MaxPool2D[B]) OutputShape(input tensor.Shape) (tensor.Shape, error) {
	if len(input) != 4 {
		return nil, errors.Errorf("maxpool2d: expected 4D input [N,C,H,W], got %v", input)
	}
	h := tensor.ConvOutputSize(input[2], m.kernelSize, m.stride, m.padding)
	w := tensor.ConvOutputSize(input[3], m.kernelSize, m.stride, m.padding)
	if h <= 0 || w <= 0 {
		return nil, errors.Wrapf(ErrEmptyOutput, "maxpool2d %d stride %d on %dx%d", m.kernelSize, m.stride, input[2], input[3])
	}
	return tensor.Shape{input[0], input[1], h, w}, nil
}

// Parameters returns nil (pooling has no learnable parameters).
func (m *MaxPool2D[B]) Parameters() []*Parameter[B] {
	return nil
}

// String returns a string representation of the layer.
func (m *MaxPool2D[B]) String() string {
	return fmt.Sprintf("MaxPool2D(kernel_size=%d, stride=%d, padding=%d)", m.kernelSize, m.stride, m.padding)
}

// KernelSize returns the pooling window size.
func (m *MaxPool2D[B]) KernelSize() int {
	return m.kernelSize
}

// Stride returns the stride.
func (m *MaxPool2D[B]) Stride() int {
	return m.stride
}

// Padding returns the implicit padding.
func (m *MaxPool2D[B]) Padding() int {
	return m.padding
}

// GlobalAvgPool2D averages every channel plane and drops the spatial axes:
// [N, C, H, W] -> [N, C].
type GlobalAvgPool2D[B tensor.Backend] struct {
	backend B
}

// NewGlobalAvgPool2D creates a global average pooling layer.
func NewGlobalAvgPool2D[B tensor.Backend](backend B) *GlobalAvgPool2D[B] {
	return &GlobalAvgPool2D[B]{backend: backend}
}

// Forward performs the forward pass.
func (g *GlobalAvgPool2D[B]) Forward(input *tensor.Tensor[B]) *tensor.Tensor[B] {
	if len(input.Shape()) != 4 {
		exceptions.Panicf("global_avg_pool2d: expected 4D input [N,C,H,W], got %dD", len(input.Shape()))
	}
	return tensor.New(g.backend.GlobalAvgPool2D(input.Raw()), g.backend)
}

// OutputShape infers the output shape for an input shape.
func (g *GlobalAvgPool2D[B]) OutputShape(input tensor.Shape) (tensor.Shape, error) {
	if len(input) != 4 {
		return nil, errors.Errorf("global_avg_pool2d: expected 4D input [N,C,H,W], got %v", input)
	}
	return tensor.Shape{input[0], input[1]}, nil
}

// Parameters returns nil.
func (g *GlobalAvgPool2D[B]) Parameters() []*Parameter[B] {
	return nil
}

// String returns a string representation of the layer.
func (g *GlobalAvgPool2D[B]) String() string {
	return "GlobalAvgPool2D()"
}
