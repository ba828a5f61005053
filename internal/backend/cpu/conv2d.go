package cpu

import (
	"github.com/gomlx/exceptions"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/born-ml/resnet/internal/parallel"
	"github.com/born-ml/resnet/internal/tensor"
)

// Conv2D performs 2D convolution using the im2col algorithm.
//
// Input shape: [batch, in_channels, height, width]
// Kernel shape: [out_channels, in_channels, kernel_h, kernel_w]
// Output shape: [batch, out_channels, out_h, out_w]
//
// Algorithm, per sample:
//  1. Im2col: unfold the padded input into col [C_in*K_h*K_w, H_out*W_out]
//  2. GEMM: kernel [C_out, C_in*K_h*K_w] @ col -> [C_out, H_out*W_out]
//
// The GEMM result is already the NCHW plane block for that sample, so no
// rearrangement pass is needed. Samples run in parallel.
func (cpu *CPUBackend) Conv2D(input, kernel *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	requireRank("conv2d", input, 4)
	requireRank("conv2d", kernel, 4)

	inputShape := input.Shape()
	kernelShape := kernel.Shape()

	N := inputShape[0]     // batch size
	CIn := inputShape[1]   // input channels
	H := inputShape[2]     // input height
	W := inputShape[3]     // input width
	COut := kernelShape[0] // output channels
	KH := kernelShape[2]   // kernel height
	KW := kernelShape[3]   // kernel width

	if CIn != kernelShape[1] {
		panic(&tensor.ShapeMismatchError{
			Op:       "conv2d",
			Expected: tensor.Shape{N, kernelShape[1], H, W},
			Actual:   inputShape.Clone(),
		})
	}
	if stride <= 0 || padding < 0 {
		exceptions.Panicf("conv2d: invalid stride %d or padding %d", stride, padding)
	}

	HOut := tensor.ConvOutputSize(H, KH, stride, padding)
	WOut := tensor.ConvOutputSize(W, KW, stride, padding)
	if HOut <= 0 || WOut <= 0 {
		exceptions.Panicf("conv2d: input %dx%d too small for %dx%d kernel with padding %d", H, W, KH, KW, padding)
	}

	output := cpu.alloc("conv2d", tensor.Shape{N, COut, HOut, WOut})

	g := convGeometry{
		c: CIn, h: H, w: W,
		kh: KH, kw: KW,
		hOut: HOut, wOut: WOut,
		stride: stride, padding: padding,
	}
	colRows := CIn * KH * KW
	colCols := HOut * WOut
	inPlane := CIn * H * W
	outPlane := COut * colCols

	weights := blas32.General{Rows: COut, Cols: colRows, Stride: colRows, Data: kernel.Float32()}
	inputData := input.Float32()
	outputData := output.Float32()

	parallel.ForRange(N, cpu.par, func(start, end int) {
		// One column buffer per goroutine, reused across its samples.
		col := make([]float32, colRows*colCols)
		for n := start; n < end; n++ {
			g.im2col(col, inputData[n*inPlane:(n+1)*inPlane])
			blas32.Gemm(blas.NoTrans, blas.NoTrans, 1,
				weights,
				blas32.General{Rows: colRows, Cols: colCols, Stride: colCols, Data: col},
				0,
				blas32.General{Rows: COut, Cols: colCols, Stride: colCols, Data: outputData[n*outPlane : (n+1)*outPlane]},
			)
		}
	})

	return output
}

type convGeometry struct {
	c, h, w         int
	kh, kw          int
	hOut, wOut      int
	stride, padding int
}

// im2col unfolds one sample [C, H, W] into col [C*K_h*K_w, H_out*W_out].
//
// Row r = (c, kh, kw) holds, for every output position, the input value the
// kernel tap (kh, kw) of channel c sees there. Out-of-bounds taps are zero.
func (g convGeometry) im2col(col, sample []float32) {
	hw := g.hOut * g.wOut
	row := 0
	for c := 0; c < g.c; c++ {
		plane := sample[c*g.h*g.w : (c+1)*g.h*g.w]
		for kh := 0; kh < g.kh; kh++ {
			for kw := 0; kw < g.kw; kw++ {
				dst := col[row*hw : (row+1)*hw]
				idx := 0
				for oh := 0; oh < g.hOut; oh++ {
					ih := oh*g.stride - g.padding + kh
					if ih < 0 || ih >= g.h {
						for ow := 0; ow < g.wOut; ow++ {
							dst[idx] = 0
							idx++
						}
						continue
					}
					src := plane[ih*g.w : (ih+1)*g.w]
					for ow := 0; ow < g.wOut; ow++ {
						iw := ow*g.stride - g.padding + kw
						if iw >= 0 && iw < g.w {
							dst[idx] = src[iw]
						} else {
							dst[idx] = 0
						}
						idx++
					}
				}
				row++
			}
		}
	}
}
