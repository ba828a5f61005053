// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/born-ml/resnet/internal/tensor"
)

// Shape represents the dimensions of a tensor.
// Example: Shape{2, 64, 56, 56} is a batch of two 64-channel 56×56 maps.
type Shape = tensor.Shape

// Device represents the device where tensor data resides.
type Device = tensor.Device

// Device constants.
const (
	CPU Device = tensor.CPU
)

// Backend defines the interface that all compute backends must implement.
//
// Implementations:
//   - backend/cpu: Pure Go with gonum BLAS convolutions
type Backend = tensor.Backend

// RawTensor is the low-level tensor representation shared with backends.
//
// Most users should use the high-level Tensor[B] type instead.
type RawTensor = tensor.RawTensor

// Tensor is a float32 tensor bound to backend B.
//
// Example:
//
//	backend := cpu.New()
//	x := tensor.Zeros(tensor.Shape{2, 3}, backend)
//	y := tensor.Ones(tensor.Shape{2, 3}, backend)
//	z := x.Add(y)
type Tensor[B Backend] = tensor.Tensor[B]

// ShapeMismatchError reports two shapes an operation required to agree.
type ShapeMismatchError = tensor.ShapeMismatchError

// NewRaw allocates a zero-filled RawTensor.
func NewRaw(shape Shape, device Device) (*RawTensor, error) {
	return tensor.NewRaw(shape, device)
}

// FromSlice copies data into a new tensor of the given shape.
func FromSlice[B Backend](data []float32, shape Shape, b B) (*Tensor[B], error) {
	return tensor.FromSlice(data, shape, b)
}

// Zeros creates a tensor filled with zeros.
func Zeros[B Backend](shape Shape, b B) *Tensor[B] {
	return tensor.Zeros(shape, b)
}

// Ones creates a tensor filled with ones.
func Ones[B Backend](shape Shape, b B) *Tensor[B] {
	return tensor.Ones(shape, b)
}

// Full creates a tensor filled with value.
func Full[B Backend](shape Shape, value float32, b B) *Tensor[B] {
	return tensor.Full(shape, value, b)
}

// Randn creates a tensor of standard normal samples from a seeded generator.
func Randn[B Backend](shape Shape, seed uint64, b B) *Tensor[B] {
	return tensor.Randn(shape, seed, b)
}

// Rand creates a tensor of uniform [0, 1) samples from a seeded generator.
func Rand[B Backend](shape Shape, seed uint64, b B) *Tensor[B] {
	return tensor.Rand(shape, seed, b)
}
