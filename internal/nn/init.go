package nn

import (
	"math"
	"math/rand/v2"

	"github.com/born-ml/resnet/internal/tensor"
)

// KaimingNormal (He) initialization for weights followed by ReLU.
//
// Draws from N(0, 2/fan) where fan is fan_out (mode="fan_out"), the usual
// choice for convolutions in residual networks.
//
// Parameters:
//   - fan: Fan used for the variance (out_channels * k_h * k_w for conv)
//   - shape: Shape of the weight tensor
//   - src: Random source; the same source state yields the same weights
//   - backend: Backend to use for tensor creation
func KaimingNormal[B tensor.Backend](fan int, shape tensor.Shape, src rand.Source, backend B) *tensor.Tensor[B] {
	t := tensor.Zeros(shape, backend)
	tensor.FillNormal(t.Data(), 0, math.Sqrt(2.0/float64(fan)), src)
	return t
}

// Xavier (Glorot) uniform initialization for weights.
//
// Initializes weights with values drawn from a uniform distribution:
// U(-sqrt(6/(fan_in + fan_out)), sqrt(6/(fan_in + fan_out)))
func Xavier[B tensor.Backend](fanIn, fanOut int, shape tensor.Shape, src rand.Source, backend B) *tensor.Tensor[B] {
	bound := math.Sqrt(6.0 / float64(fanIn+fanOut))
	t := tensor.Zeros(shape, backend)
	tensor.FillUniform(t.Data(), -bound, bound, src)
	return t
}

// Zeros creates a tensor filled with zeros.
//
// This is commonly used for bias initialization.
func Zeros[B tensor.Backend](shape tensor.Shape, backend B) *tensor.Tensor[B] {
	return tensor.Zeros(shape, backend)
}

// Ones creates a tensor filled with ones.
func Ones[B tensor.Backend](shape tensor.Shape, backend B) *tensor.Tensor[B] {
	return tensor.Ones(shape, backend)
}
