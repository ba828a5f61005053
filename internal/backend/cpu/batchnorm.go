package cpu

import (
	"github.com/gomlx/exceptions"

	"github.com/born-ml/resnet/internal/parallel"
	"github.com/born-ml/resnet/internal/tensor"
)

// ChannelMoments returns per-channel mean and biased variance of an
// [N, C, ...] tensor, reduced over every axis except C.
//
// Uses a two-pass float64 reduction per channel; channels run in parallel.
func (cpu *CPUBackend) ChannelMoments(x *tensor.RawTensor) (mean, variance *tensor.RawTensor) {
	s := x.Shape()
	if len(s) < 2 {
		exceptions.Panicf("channel_moments: expected [N,C,...] input, got %v", s)
	}
	N, C := s[0], s[1]
	inner := x.NumElements() / (N * C)
	count := float64(N * inner)

	mean = cpu.alloc("channel_moments", tensor.Shape{C})
	variance = cpu.alloc("channel_moments", tensor.Shape{C})
	data := x.Float32()
	md, vd := mean.Float32(), variance.Float32()

	parallel.For(C, cpu.par, func(c int) {
		var sum float64
		for n := 0; n < N; n++ {
			base := (n*C + c) * inner
			for _, v := range data[base : base+inner] {
				sum += float64(v)
			}
		}
		mu := sum / count

		var sq float64
		for n := 0; n < N; n++ {
			base := (n*C + c) * inner
			for _, v := range data[base : base+inner] {
				d := float64(v) - mu
				sq += d * d
			}
		}
		md[c] = float32(mu)
		vd[c] = float32(sq / count)
	})

	return mean, variance
}

// ChannelAffine computes out[n, c, ...] = x[n, c, ...]*scale[c] + shift[c].
// A nil scale means 1 and a nil shift means 0.
func (cpu *CPUBackend) ChannelAffine(x, scale, shift *tensor.RawTensor) *tensor.RawTensor {
	s := x.Shape()
	if len(s) < 2 {
		exceptions.Panicf("channel_affine: expected [N,C,...] input, got %v", s)
	}
	N, C := s[0], s[1]
	inner := x.NumElements() / (N * C)
	for _, p := range []*tensor.RawTensor{scale, shift} {
		if p != nil && !p.Shape().Equal(tensor.Shape{C}) {
			panic(&tensor.ShapeMismatchError{Op: "channel_affine", Expected: tensor.Shape{C}, Actual: p.Shape().Clone()})
		}
	}

	output := cpu.alloc("channel_affine", s)
	in, out := x.Float32(), output.Float32()

	parallel.ForBatch(N, C, cpu.par, func(n, c int) {
		a, b := float32(1), float32(0)
		if scale != nil {
			a = scale.Float32()[c]
		}
		if shift != nil {
			b = shift.Float32()[c]
		}
		base := (n*C + c) * inner
		src := in[base : base+inner]
		dst := out[base : base+inner]
		for i, v := range src {
			dst[i] = v*a + b
		}
	})

	return output
}
