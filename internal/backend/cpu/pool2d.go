package cpu

import (
	"math"

	"github.com/gomlx/exceptions"

	"github.com/born-ml/resnet/internal/parallel"
	"github.com/born-ml/resnet/internal/tensor"
)

// MaxPool2D performs 2D max pooling with symmetric implicit padding.
//
// Input shape:  [batch, channels, height, width]
// Output shape: [batch, channels, out_height, out_width]
//
// Where:
//
//	out_height = (height + 2*padding - kernelSize) / stride + 1
//	out_width  = (width + 2*padding - kernelSize) / stride + 1
//
// Padded cells act as -Inf, so they never win a window. Padding larger than
// half the window would allow all-padding windows and is rejected.
//
// Example (3x3 pool, stride=2, padding=1) on a 4x4 plane gives a 2x2 plane.
func (cpu *CPUBackend) MaxPool2D(input *tensor.RawTensor, kernelSize, stride, padding int) *tensor.RawTensor {
	requireRank("maxpool2d", input, 4)

	inputShape := input.Shape()
	N := inputShape[0]
	C := inputShape[1]
	H := inputShape[2]
	W := inputShape[3]

	if kernelSize <= 0 {
		exceptions.Panicf("maxpool2d: invalid kernel size %d", kernelSize)
	}
	if stride <= 0 {
		exceptions.Panicf("maxpool2d: invalid stride %d", stride)
	}
	if padding < 0 || padding > kernelSize/2 {
		exceptions.Panicf("maxpool2d: padding %d must be in [0, %d]", padding, kernelSize/2)
	}

	HOut := tensor.ConvOutputSize(H, kernelSize, stride, padding)
	WOut := tensor.ConvOutputSize(W, kernelSize, stride, padding)
	if HOut <= 0 || WOut <= 0 {
		exceptions.Panicf("maxpool2d: kernel size %d too large for input %dx%d", kernelSize, H, W)
	}

	output := cpu.alloc("maxpool2d", tensor.Shape{N, C, HOut, WOut})
	in := input.Float32()
	out := output.Float32()
	negInf := float32(math.Inf(-1))

	parallel.ForBatch(N, C, cpu.par, func(n, c int) {
		p := n*C + c
		src := in[p*H*W : (p+1)*H*W]
		dst := out[p*HOut*WOut : (p+1)*HOut*WOut]
		for oh := 0; oh < HOut; oh++ {
			h0 := oh*stride - padding
			hLo, hHi := max(h0, 0), min(h0+kernelSize, H)
			for ow := 0; ow < WOut; ow++ {
				w0 := ow*stride - padding
				wLo, wHi := max(w0, 0), min(w0+kernelSize, W)
				best := negInf
				for h := hLo; h < hHi; h++ {
					row := src[h*W : (h+1)*W]
					for w := wLo; w < wHi; w++ {
						if row[w] > best {
							best = row[w]
						}
					}
				}
				dst[oh*WOut+ow] = best
			}
		}
	})

	return output
}

// GlobalAvgPool2D averages each [H, W] plane: [N, C, H, W] -> [N, C].
// Sums are accumulated in float64.
func (cpu *CPUBackend) GlobalAvgPool2D(input *tensor.RawTensor) *tensor.RawTensor {
	requireRank("global_avg_pool2d", input, 4)

	s := input.Shape()
	N, C, HW := s[0], s[1], s[2]*s[3]
	output := cpu.alloc("global_avg_pool2d", tensor.Shape{N, C})
	in := input.Float32()
	out := output.Float32()

	parallel.For(N*C, cpu.par, func(p int) {
		var sum float64
		for _, v := range in[p*HW : (p+1)*HW] {
			sum += float64(v)
		}
		out[p] = float32(sum / float64(HW))
	})

	return output
}
