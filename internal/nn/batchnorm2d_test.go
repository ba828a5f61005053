package nn

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/resnet/internal/backend/cpu"
	"github.com/born-ml/resnet/internal/tensor"
)

func TestBatchNorm2D_EvalIdentityAtInit(t *testing.T) {
	backend := cpu.New()
	bn := NewBatchNorm2D(3, DefaultBatchNormMomentum, DefaultBatchNormEpsilon, backend)
	assert.False(t, bn.Training())

	x := tensor.Randn(tensor.Shape{2, 3, 4, 4}, 1, backend)
	y := bn.Forward(x)

	// Running mean 0, var 1, gamma 1, beta 0: y = x / sqrt(1 + eps).
	scale := float32(1 / math.Sqrt(1+DefaultBatchNormEpsilon))
	for i, v := range x.Data() {
		require.InDelta(t, v*scale, y.Data()[i], 1e-6)
	}

	mean, variance := bn.RunningStats()
	assert.Equal(t, []float32{0, 0, 0}, mean, "eval mode never mutates running stats")
	assert.Equal(t, []float32{1, 1, 1}, variance)
}

func TestBatchNorm2D_TrainingNormalizesAndUpdates(t *testing.T) {
	backend := cpu.New()
	bn := NewBatchNorm2D(2, 0.1, 1e-5, backend)
	bn.SetTraining(true)

	// Channel 0 is constant 4, channel 1 alternates 0/2 (mean 1, var 1).
	x, err := tensor.FromSlice([]float32{
		4, 4, 4, 4,
		0, 2, 0, 2,
	}, tensor.Shape{1, 2, 2, 2}, backend)
	require.NoError(t, err)

	y := bn.Forward(x)
	out := y.Data()
	for i := 0; i < 4; i++ {
		assert.InDelta(t, 0, out[i], 1e-4, "constant channel normalizes to 0")
	}
	assert.InDelta(t, -1, out[4], 1e-4)
	assert.InDelta(t, 1, out[5], 1e-4)

	mean, variance := bn.RunningStats()
	assert.InDelta(t, 0.4, mean[0], 1e-6)
	assert.InDelta(t, 0.1, mean[1], 1e-6)
	assert.InDelta(t, 0.9, variance[0], 1e-6)
	// Unbiased batch variance for channel 1: 4/3.
	assert.InDelta(t, 0.9+0.1*4.0/3.0, variance[1], 1e-6)
}

func TestBatchNorm2D_EvalUsesRunningStats(t *testing.T) {
	backend := cpu.New()
	bn := NewBatchNorm2D(1, 0.1, 1e-5, backend)
	mean, err := tensor.FromSlice([]float32{2}, tensor.Shape{1}, backend)
	require.NoError(t, err)
	variance, err := tensor.FromSlice([]float32{4}, tensor.Shape{1}, backend)
	require.NoError(t, err)

	state := bn.StateDict()
	state["running_mean"] = mean.Raw()
	state["running_var"] = variance.Raw()
	require.NoError(t, bn.LoadStateDict(state))

	x := tensor.Full(tensor.Shape{1, 1, 2, 2}, 6, backend)
	y := bn.Forward(x)
	for _, v := range y.Data() {
		assert.InDelta(t, 2, v, 1e-4) // (6 - 2) / sqrt(4)
	}
}

func TestBatchNorm2D_ParametersExcludeBuffers(t *testing.T) {
	bn := NewBatchNorm2D(8, 0.1, 1e-5, cpu.New())
	params := bn.Parameters()
	require.Len(t, params, 2)
	assert.Equal(t, "weight", params[0].Name())
	assert.Equal(t, "bias", params[1].Name())

	state := bn.StateDict()
	assert.Len(t, state, 4)
	assert.Contains(t, state, "running_mean")
	assert.Contains(t, state, "running_var")
}

func TestBatchNorm2D_ChannelMismatchPanics(t *testing.T) {
	backend := cpu.New()
	bn := NewBatchNorm2D(8, 0.1, 1e-5, backend)
	assert.Panics(t, func() { bn.Forward(tensor.Zeros(tensor.Shape{1, 4, 2, 2}, backend)) })
}

func TestBatchNorm2D_ConcurrentEval(t *testing.T) {
	backend := cpu.New()
	bn := NewBatchNorm2D(4, 0.1, 1e-5, backend)
	x := tensor.Randn(tensor.Shape{2, 4, 8, 8}, 5, backend)
	want := bn.Forward(x).Data()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, want, bn.Forward(x).Data())
		}()
	}
	wg.Wait()
}
