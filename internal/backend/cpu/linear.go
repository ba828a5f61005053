package cpu

import (
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/born-ml/resnet/internal/tensor"
)

// Linear computes x @ weight^T + bias.
//
// Shapes: x [N, in], weight [out, in], bias [out] or nil -> [N, out].
// The bias is broadcast into the output first so a single GEMM with beta=1
// finishes the job.
func (cpu *CPUBackend) Linear(x, weight, bias *tensor.RawTensor) *tensor.RawTensor {
	requireRank("linear", x, 2)
	requireRank("linear", weight, 2)

	N, in := x.Shape()[0], x.Shape()[1]
	out := weight.Shape()[0]
	if weight.Shape()[1] != in {
		panic(&tensor.ShapeMismatchError{Op: "linear", Expected: tensor.Shape{N, weight.Shape()[1]}, Actual: x.Shape().Clone()})
	}
	if bias != nil && !bias.Shape().Equal(tensor.Shape{out}) {
		panic(&tensor.ShapeMismatchError{Op: "linear", Expected: tensor.Shape{out}, Actual: bias.Shape().Clone()})
	}

	result := cpu.alloc("linear", tensor.Shape{N, out})
	rd := result.Float32()
	var beta float32
	if bias != nil {
		bd := bias.Float32()
		for i := 0; i < N; i++ {
			copy(rd[i*out:(i+1)*out], bd)
		}
		beta = 1
	}

	blas32.Gemm(blas.NoTrans, blas.Trans, 1,
		blas32.General{Rows: N, Cols: in, Stride: in, Data: x.Float32()},
		blas32.General{Rows: out, Cols: in, Stride: in, Data: weight.Float32()},
		beta,
		blas32.General{Rows: N, Cols: out, Stride: out, Data: rd},
	)

	return result
}
