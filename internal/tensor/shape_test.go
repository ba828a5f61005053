package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShapeNumElements(t *testing.T) {
	tests := []struct {
		shape Shape
		want  int
	}{
		{Shape{}, 1},
		{Shape{5}, 5},
		{Shape{2, 64, 56, 56}, 2 * 64 * 56 * 56},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.shape.NumElements(), "shape %v", tt.shape)
	}
}

func TestShapeValidate(t *testing.T) {
	assert.NoError(t, Shape{1, 3, 224, 224}.Validate())
	assert.Error(t, Shape{1, 0, 4}.Validate())
	assert.Error(t, Shape{-1}.Validate())
}

func TestShapeStrides(t *testing.T) {
	assert.Equal(t, []int{12, 4, 1}, Shape{2, 3, 4}.ComputeStrides())
	assert.Equal(t, []int{}, Shape{}.ComputeStrides())
}

func TestShapeString(t *testing.T) {
	assert.Equal(t, "(2, 64, 56, 56)", Shape{2, 64, 56, 56}.String())
	assert.Equal(t, "()", Shape{}.String())
}

func TestShapeWithChannels(t *testing.T) {
	s := Shape{2, 64, 56, 56}
	got := s.WithChannels(128)
	assert.Equal(t, Shape{2, 128, 56, 56}, got)
	assert.Equal(t, 64, s[1], "original must be untouched")
}

func TestConvOutputSize(t *testing.T) {
	tests := []struct {
		name                          string
		size, kernel, stride, padding int
		want                          int
	}{
		{"same 3x3", 56, 3, 1, 1, 56},
		{"stride 2 even", 56, 3, 2, 1, 28},
		{"stride 2 odd", 7, 3, 2, 1, 4},
		{"stem", 224, 7, 2, 3, 112},
		{"1x1 stride 2 odd", 7, 1, 2, 0, 4},
		{"too small", 2, 5, 1, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ConvOutputSize(tt.size, tt.kernel, tt.stride, tt.padding))
		})
	}
}
