// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor_test

import (
	"errors"
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/resnet/backend/cpu"
	"github.com/born-ml/resnet/tensor"
)

// TestBackendInterface verifies that the CPU backend implements tensor.Backend.
func TestBackendInterface(_ *testing.T) {
	var _ tensor.Backend = cpu.New()
}

func TestRawTensorAPI(t *testing.T) {
	raw, err := tensor.NewRaw(tensor.Shape{2, 3}, tensor.CPU)
	require.NoError(t, err)
	assert.True(t, raw.Shape().Equal(tensor.Shape{2, 3}))
	assert.Equal(t, tensor.CPU, raw.Device())
	assert.Equal(t, 6, raw.NumElements())
	assert.Equal(t, 24, raw.ByteSize())
}

func TestCreation(t *testing.T) {
	backend := cpu.New()

	x := tensor.Zeros(tensor.Shape{2, 3}, backend)
	y := tensor.Ones(tensor.Shape{2, 3}, backend)
	assert.Equal(t, []float32{1, 1, 1, 1, 1, 1}, x.Add(y).Data())
	assert.Equal(t, float32(2.5), tensor.Full(tensor.Shape{1}, 2.5, backend).Data()[0])

	a := tensor.Randn(tensor.Shape{4, 4}, 7, backend)
	b := tensor.Randn(tensor.Shape{4, 4}, 7, backend)
	assert.Equal(t, a.Data(), b.Data(), "same seed, same samples")

	for _, v := range tensor.Rand(tensor.Shape{64}, 1, backend).Data() {
		assert.GreaterOrEqual(t, v, float32(0))
		assert.Less(t, v, float32(1))
	}

	_, err := tensor.FromSlice([]float32{1, 2, 3}, tensor.Shape{2, 2}, backend)
	assert.Error(t, err)
}

func TestAddNeverBroadcasts(t *testing.T) {
	backend := cpu.New()
	a := tensor.Zeros(tensor.Shape{2, 3}, backend)
	b := tensor.Zeros(tensor.Shape{1, 3}, backend)

	err := exceptions.TryCatch[error](func() { a.Add(b) })
	var mismatch *tensor.ShapeMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, tensor.Shape{2, 3}, mismatch.Expected)
	assert.Equal(t, tensor.Shape{1, 3}, mismatch.Actual)
}
