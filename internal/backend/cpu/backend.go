// Package cpu implements the CPU backend with BLAS-backed convolution and
// goroutine-parallel kernels.
package cpu

import (
	"github.com/gomlx/exceptions"

	"github.com/born-ml/resnet/internal/parallel"
	"github.com/born-ml/resnet/internal/tensor"
)

// Verify that CPUBackend implements Backend.
var _ tensor.Backend = (*CPUBackend)(nil)

// CPUBackend implements tensor operations on CPU.
//
// A CPUBackend holds no mutable state after construction and is safe for
// concurrent use by multiple goroutines.
type CPUBackend struct {
	device tensor.Device
	par    parallel.Config
}

// New creates a new CPU backend using all schedulable CPUs.
func New() *CPUBackend {
	return NewWithConfig(parallel.DefaultConfig())
}

// NewWithConfig creates a CPU backend with explicit parallelism settings.
func NewWithConfig(cfg parallel.Config) *CPUBackend {
	return &CPUBackend{
		device: tensor.CPU,
		par:    cfg,
	}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Device returns the compute device.
func (cpu *CPUBackend) Device() tensor.Device {
	return cpu.device
}

// Workers returns the goroutine bound used by parallel kernels.
func (cpu *CPUBackend) Workers() int {
	return max(cpu.par.Workers, 1)
}

func (cpu *CPUBackend) alloc(op string, shape tensor.Shape) *tensor.RawTensor {
	out, err := tensor.NewRaw(shape, cpu.device)
	if err != nil {
		exceptions.Panicf("%s: failed to create result tensor: %v", op, err)
	}
	return out
}

func requireRank(op string, t *tensor.RawTensor, rank int) {
	if len(t.Shape()) != rank {
		exceptions.Panicf("%s: expected %dD input, got %dD %v", op, rank, len(t.Shape()), t.Shape())
	}
}
