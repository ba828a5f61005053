// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides a pure Go CPU backend for tensor operations.
//
// # Overview
//
// This package implements a CPU backend with:
//   - Pure Go implementation (no CGO)
//   - Im2col + gonum BLAS GEMM convolutions
//   - Batch and channel parallelism over goroutines
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/resnet/backend/cpu"
//	    "github.com/born-ml/resnet/resnet"
//	)
//
//	func main() {
//	    backend := cpu.New()
//	    net, err := resnet.New(cfg, backend)
//	}
//
// # Thread Safety
//
// The CPU backend is safe for concurrent use. Each kernel writes only to
// its own freshly allocated output, split into disjoint regions per worker.
package cpu
