package nn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/resnet/internal/backend/cpu"
	"github.com/born-ml/resnet/internal/tensor"
)

// TestMaxPool2D_Creation tests MaxPool2D layer creation.
func TestMaxPool2D_Creation(t *testing.T) {
	pool := NewMaxPool2D(3, 2, 1, cpu.New())

	assert.Equal(t, 3, pool.KernelSize())
	assert.Equal(t, 2, pool.Stride())
	assert.Equal(t, 1, pool.Padding())
	assert.Nil(t, pool.Parameters())
	assert.Equal(t, "MaxPool2D(kernel_size=3, stride=2, padding=1)", pool.String())
}

func TestMaxPool2D_InvalidPanics(t *testing.T) {
	backend := cpu.New()
	assert.Panics(t, func() { NewMaxPool2D(0, 2, 0, backend) })
	assert.Panics(t, func() { NewMaxPool2D(3, 0, 0, backend) })
	assert.Panics(t, func() { NewMaxPool2D(3, 2, 2, backend) })
}

func TestMaxPool2D_StemShapes(t *testing.T) {
	backend := cpu.New()
	pool := NewMaxPool2D(3, 2, 1, backend)

	tests := []struct {
		in, want tensor.Shape
	}{
		{tensor.Shape{1, 64, 112, 112}, tensor.Shape{1, 64, 56, 56}},
		{tensor.Shape{2, 8, 7, 7}, tensor.Shape{2, 8, 4, 4}},
		{tensor.Shape{1, 1, 1, 1}, tensor.Shape{1, 1, 1, 1}},
	}
	for _, tt := range tests {
		got, err := pool.OutputShape(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "input %v", tt.in)
	}

	y := pool.Forward(tensor.Randn(tensor.Shape{2, 8, 7, 7}, 3, backend))
	assert.Equal(t, tensor.Shape{2, 8, 4, 4}, y.Shape())
}

func TestMaxPool2D_Forward(t *testing.T) {
	backend := cpu.New()
	pool := NewMaxPool2D(2, 2, 0, backend)

	input, err := tensor.FromSlice([]float32{
		1, 2, 3, 4,
		5, 6, 7, 8,
		9, 10, 11, 12,
		13, 14, 15, 16,
	}, tensor.Shape{1, 1, 4, 4}, backend)
	require.NoError(t, err)

	output := pool.Forward(input)
	assert.Equal(t, []float32{6, 8, 14, 16}, output.Data())
}

func TestGlobalAvgPool2D(t *testing.T) {
	backend := cpu.New()
	gap := NewGlobalAvgPool2D(backend)

	x := tensor.Full(tensor.Shape{2, 3, 7, 7}, 2.5, backend)
	y := gap.Forward(x)
	assert.Equal(t, tensor.Shape{2, 3}, y.Shape())
	for _, v := range y.Data() {
		assert.InDelta(t, 2.5, v, 1e-6)
	}

	shape, err := gap.OutputShape(tensor.Shape{4, 512, 7, 7})
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{4, 512}, shape)

	_, err = gap.OutputShape(tensor.Shape{4, 512})
	assert.Error(t, err)
}
