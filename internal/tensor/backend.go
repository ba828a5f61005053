package tensor

// Backend defines the numeric operations the model layers are built from.
// Backends handle the actual computation; layers only compose calls.
//
// Shape errors are reported by panicking with *ShapeMismatchError; other
// invalid arguments (bad rank, bad window) panic with a descriptive error.
type Backend interface {
	// Add performs element-wise addition of two tensors of identical shape.
	Add(a, b *RawTensor) *RawTensor

	// ReLU computes max(x, 0) element-wise.
	ReLU(x *RawTensor) *RawTensor

	// Conv2D convolves input [N, C_in, H, W] with kernel [C_out, C_in, K_h, K_w]
	// using symmetric zero padding, producing [N, C_out, H_out, W_out].
	Conv2D(input, kernel *RawTensor, stride, padding int) *RawTensor

	// MaxPool2D takes window maxima over [N, C, H, W]; padded cells never win.
	MaxPool2D(input *RawTensor, kernelSize, stride, padding int) *RawTensor

	// GlobalAvgPool2D averages each channel plane: [N, C, H, W] -> [N, C].
	GlobalAvgPool2D(input *RawTensor) *RawTensor

	// ChannelMoments returns the per-channel mean and biased variance of
	// [N, C, H, W] over the N, H and W axes, both shaped [C].
	ChannelMoments(x *RawTensor) (mean, variance *RawTensor)

	// ChannelAffine computes x*scale[c] + shift[c] over [N, C, ...].
	// A nil scale means 1 and a nil shift means 0.
	ChannelAffine(x, scale, shift *RawTensor) *RawTensor

	// Linear computes x @ weight^T + bias for x [N, in], weight [out, in],
	// bias [out] (nil for no bias).
	Linear(x, weight, bias *RawTensor) *RawTensor

	// Reshape returns a tensor with the same data and a new shape.
	Reshape(t *RawTensor, newShape Shape) *RawTensor

	// Metadata
	Name() string
	Device() Device
}
