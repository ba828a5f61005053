package cpu

import (
	"github.com/gomlx/exceptions"

	"github.com/born-ml/resnet/internal/tensor"
)

// Add performs element-wise addition. Shapes must match exactly; a mismatch
// panics with *tensor.ShapeMismatchError.
func (cpu *CPUBackend) Add(a, b *tensor.RawTensor) *tensor.RawTensor {
	tensor.CheckSameShape("add", a.Shape(), b.Shape())

	result := cpu.alloc("add", a.Shape())
	out, ad, bd := result.Float32(), a.Float32(), b.Float32()
	for i := range out {
		out[i] = ad[i] + bd[i]
	}
	return result
}

// ReLU computes max(x, 0) element-wise.
func (cpu *CPUBackend) ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	result := cpu.alloc("relu", x.Shape())
	out := result.Float32()
	for i, v := range x.Float32() {
		if v > 0 {
			out[i] = v
		}
	}
	return result
}

// Reshape returns a view over the same data with a new shape.
func (cpu *CPUBackend) Reshape(t *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	out, err := t.View(newShape)
	if err != nil {
		exceptions.Panicf("reshape: cannot reshape %v to %v: %v", t.Shape(), newShape, err)
	}
	return out
}
