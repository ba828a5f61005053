package nn

import (
	"fmt"
	"math/rand/v2"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"

	"github.com/born-ml/resnet/internal/tensor"
)

// ErrEmptyOutput is returned by shape inference when a window-based layer
// would produce a non-positive spatial size.
var ErrEmptyOutput = errors.New("non-positive output spatial size")

// Conv2D is a 2D convolutional layer with square kernels.
//
// Performs convolution: output = Conv2D(input, weight) + bias
//
// Input shape:  [batch, in_channels, height, width]
// Weight shape: [out_channels, in_channels, kernel, kernel]
// Bias shape:   [out_channels]
// Output shape: [batch, out_channels, out_h, out_w]
//
// Where:
//
//	out_h = (height + 2*padding - kernel) / stride + 1
//	out_w = (width + 2*padding - kernel) / stride + 1
//
// Example:
//
//	// 3x3 "same" convolution, 64 -> 128 channels, stride 2, no bias
//	conv := nn.NewConv2D(64, 128, 3, 2, 1, false, src, backend)
//	output := conv.Forward(input) // [N, 128, H/2, W/2]
type Conv2D[B tensor.Backend] struct {
	inChannels  int
	outChannels int
	kernelSize  int
	stride      int
	padding     int
	useBias     bool

	weight *Parameter[B] // [out_channels, in_channels, kernel, kernel]
	bias   *Parameter[B] // [out_channels] or nil

	backend B
}

// NewConv2D creates a new 2D convolutional layer.
//
// Parameters:
//   - inChannels: Number of input channels
//   - outChannels: Number of output channels (number of filters)
//   - kernelSize: Square kernel size
//   - stride: Stride for convolution (commonly 1 or 2)
//   - padding: Zero padding applied to every spatial border
//   - useBias: Whether to include bias term
//   - src: Random source for weight initialization
//   - backend: Backend for computation
//
// Initialization:
//   - Weights: Kaiming normal, fan_out mode
//   - Bias: Zeros
//
// Panics on non-positive sizes; callers validate configuration first.
func NewConv2D[B tensor.Backend](
	inChannels, outChannels int,
	kernelSize int,
	stride, padding int,
	useBias bool,
	src rand.Source,
	backend B,
) *Conv2D[B] {
	if inChannels <= 0 || outChannels <= 0 {
		exceptions.Panicf("conv2d: invalid channels in=%d, out=%d", inChannels, outChannels)
	}
	if kernelSize <= 0 {
		exceptions.Panicf("conv2d: invalid kernel size %d", kernelSize)
	}
	if stride <= 0 {
		exceptions.Panicf("conv2d: invalid stride %d", stride)
	}
	if padding < 0 {
		exceptions.Panicf("conv2d: invalid padding %d", padding)
	}

	weightShape := tensor.Shape{outChannels, inChannels, kernelSize, kernelSize}
	fanOut := outChannels * kernelSize * kernelSize
	weight := NewParameter("weight", KaimingNormal(fanOut, weightShape, src, backend))

	var bias *Parameter[B]
	if useBias {
		bias = NewParameter("bias", Zeros(tensor.Shape{outChannels}, backend))
	}

	return &Conv2D[B]{
		inChannels:  inChannels,
		outChannels: outChannels,
		kernelSize:  kernelSize,
		stride:      stride,
		padding:     padding,
		useBias:     useBias,
		weight:      weight,
		bias:        bias,
		backend:     backend,
	}
}

// Forward performs the forward pass.
//
// Input: [batch, in_channels, height, width]
// Output: [batch, out_channels, out_h, out_w].
func (c *Conv2D[B]) Forward(input *tensor.Tensor[B]) *tensor.Tensor[B] {
	inputShape := input.Shape()
	if len(inputShape) != 4 {
		exceptions.Panicf("conv2d: expected 4D input [N,C,H,W], got %dD", len(inputShape))
	}
	if inputShape[1] != c.inChannels {
		panic(&tensor.ShapeMismatchError{
			Op:       "conv2d input",
			Expected: inputShape.WithChannels(c.inChannels),
			Actual:   inputShape.Clone(),
		})
	}

	outputRaw := c.backend.Conv2D(input.Raw(), c.weight.Tensor().Raw(), c.stride, c.padding)
	if c.useBias {
		outputRaw = c.backend.ChannelAffine(outputRaw, nil, c.bias.Tensor().Raw())
	}
	return tensor.New(outputRaw, c.backend)
}

// OutputShape infers the output shape for an input shape.
func (c *Conv2D[B]) OutputShape(input tensor.Shape) (tensor.Shape, error) {
	if len(input) != 4 {
		return nil, errors.Errorf("conv2d: expected 4D input [N,C,H,W], got %v", input)
	}
	if input[1] != c.inChannels {
		return nil, &tensor.ShapeMismatchError{
			Op:       "conv2d input",
			Expected: input.WithChannels(c.inChannels),
			Actual:   input.Clone(),
		}
	}
	h := tensor.ConvOutputSize(input[2], c.kernelSize, c.stride, c.padding)
	w := tensor.ConvOutputSize(input[3], c.kernelSize, c.stride, c.padding)
	if h <= 0 || w <= 0 {
		return nil, errors.Wrapf(ErrEmptyOutput, "conv2d %dx%d stride %d on %dx%d", c.kernelSize, c.kernelSize, c.stride, input[2], input[3])
	}
	return tensor.Shape{input[0], c.outChannels, h, w}, nil
}

// Parameters returns all learnable parameters.
func (c *Conv2D[B]) Parameters() []*Parameter[B] {
	if c.useBias {
		return []*Parameter[B]{c.weight, c.bias}
	}
	return []*Parameter[B]{c.weight}
}

// StateDict returns a map of parameter names to raw tensors.
func (c *Conv2D[B]) StateDict() map[string]*tensor.RawTensor {
	stateDict := map[string]*tensor.RawTensor{"weight": c.weight.Tensor().Raw()}
	if c.useBias {
		stateDict["bias"] = c.bias.Tensor().Raw()
	}
	return stateDict
}

// LoadStateDict loads parameters from a state dictionary.
func (c *Conv2D[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	if err := loadTensor(c.weight.Tensor().Raw(), stateDict, "weight"); err != nil {
		return err
	}
	if c.useBias {
		return loadTensor(c.bias.Tensor().Raw(), stateDict, "bias")
	}
	return nil
}

// String returns a string representation of the layer.
func (c *Conv2D[B]) String() string {
	return fmt.Sprintf("Conv2D(in_channels=%d, out_channels=%d, kernel_size=%d, stride=%d, padding=%d, bias=%v)",
		c.inChannels, c.outChannels, c.kernelSize, c.stride, c.padding, c.useBias)
}

// Weight returns the weight parameter.
func (c *Conv2D[B]) Weight() *Parameter[B] {
	return c.weight
}

// OutChannels returns the number of output channels.
func (c *Conv2D[B]) OutChannels() int {
	return c.outChannels
}

// InChannels returns the number of input channels.
func (c *Conv2D[B]) InChannels() int {
	return c.inChannels
}

// KernelSize returns the square kernel size.
func (c *Conv2D[B]) KernelSize() int {
	return c.kernelSize
}

// Stride returns the stride.
func (c *Conv2D[B]) Stride() int {
	return c.stride
}

// Padding returns the padding.
func (c *Conv2D[B]) Padding() int {
	return c.padding
}
