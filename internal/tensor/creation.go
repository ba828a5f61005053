package tensor

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// Zeros creates a tensor filled with zeros.
//
// Example:
//
//	backend := cpu.New()
//	t := tensor.Zeros(Shape{3, 4}, backend)
func Zeros[B Backend](shape Shape, b B) *Tensor[B] {
	raw, err := NewRaw(shape, b.Device())
	if err != nil {
		panic(err) // Shape validation should prevent this
	}

	// Data is already zero-initialized by make()
	return New(raw, b)
}

// Ones creates a tensor filled with ones.
func Ones[B Backend](shape Shape, b B) *Tensor[B] {
	return Full(shape, 1, b)
}

// Full creates a tensor filled with a specific value.
//
// Example:
//
//	t := tensor.Full(Shape{3, 3}, 3.14, backend)
func Full[B Backend](shape Shape, value float32, b B) *Tensor[B] {
	t := Zeros(shape, b)
	data := t.Data()
	for i := range data {
		data[i] = value
	}
	return t
}

// Randn creates a tensor of standard normal samples drawn from a PCG source
// seeded with seed. The same seed always yields the same tensor.
//
// Example:
//
//	x := tensor.Randn(Shape{1, 3, 224, 224}, 42, backend)
func Randn[B Backend](shape Shape, seed uint64, b B) *Tensor[B] {
	t := Zeros(shape, b)
	FillNormal(t.Data(), 0, 1, rand.NewPCG(seed, seed))
	return t
}

// Rand creates a tensor of values uniformly distributed in [0, 1).
func Rand[B Backend](shape Shape, seed uint64, b B) *Tensor[B] {
	t := Zeros(shape, b)
	FillUniform(t.Data(), 0, 1, rand.NewPCG(seed, seed))
	return t
}

// FillNormal overwrites data with samples from N(mean, std^2).
func FillNormal(data []float32, mean, std float64, src rand.Source) {
	dist := distuv.Normal{Mu: mean, Sigma: std, Src: src}
	for i := range data {
		data[i] = float32(dist.Rand())
	}
}

// FillUniform overwrites data with samples from U[low, high).
func FillUniform(data []float32, low, high float64, src rand.Source) {
	dist := distuv.Uniform{Min: low, Max: high, Src: src}
	for i := range data {
		data[i] = float32(dist.Rand())
	}
}
