// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the public tensor types used by the resnet package.
//
// # Overview
//
// Tensors are dense, row-major float32 arrays in NCHW layout for images.
// Every tensor is bound to a compute backend that performs its operations:
//   - Tensor[B]: high-level tensor bound to backend B
//   - RawTensor: backend-level storage (shape, strides, data)
//   - Backend: the operations a compute backend must provide
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/resnet/backend/cpu"
//	    "github.com/born-ml/resnet/tensor"
//	)
//
//	func main() {
//	    backend := cpu.New()
//	    x := tensor.Randn(tensor.Shape{1, 3, 224, 224}, 42, backend)
//	    y := x.ReLU()
//	}
//
// # Shape Errors
//
// Element-wise operations never broadcast. Mismatched operands panic with
// *ShapeMismatchError; resnet.Predict recovers such panics into errors.
package tensor
