package model

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/resnet/internal/backend/cpu"
	"github.com/born-ml/resnet/internal/nn"
	"github.com/born-ml/resnet/internal/tensor"
)

func smallNetworkConfig() NetworkConfig {
	return NetworkConfig{
		Name:      "test",
		StemWidth: 64,
		Stages: []StageConfig{
			{In: 64, Out: 64, Blocks: 2},
			{In: 64, Out: 128, Blocks: 2},
			{In: 128, Out: 256, Blocks: 2},
		},
		NumClasses: 10,
		Seed:       42,
	}
}

func TestConvUnit_OutputShape(t *testing.T) {
	backend := cpu.New()
	src := rand.NewPCG(1, 1)

	tests := []struct {
		name string
		cfg  ConvUnitConfig
		in   tensor.Shape
		want tensor.Shape
	}{
		{"3x3 stride 1", ConvUnitConfig{In: 4, Out: 8, Kernel: 3, Stride: 1, ReLU: true}, tensor.Shape{2, 4, 9, 9}, tensor.Shape{2, 8, 9, 9}},
		{"3x3 stride 2 odd", ConvUnitConfig{In: 4, Out: 8, Kernel: 3, Stride: 2}, tensor.Shape{2, 4, 9, 9}, tensor.Shape{2, 8, 5, 5}},
		{"1x1 stride 2", ConvUnitConfig{In: 4, Out: 8, Kernel: 1, Stride: 2}, tensor.Shape{1, 4, 8, 8}, tensor.Shape{1, 8, 4, 4}},
		{"7x7 stride 2", ConvUnitConfig{In: 3, Out: 16, Kernel: 7, Stride: 2, ReLU: true}, tensor.Shape{1, 3, 32, 32}, tensor.Shape{1, 16, 16, 16}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := NewConvUnit(tt.cfg, DefaultBatchNorm(), src, backend)
			require.NoError(t, err)

			shape, err := u.OutputShape(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, shape)

			y := u.Forward(tensor.Randn(tt.in, 3, backend))
			assert.Equal(t, tt.want, y.Shape())
			if tt.cfg.ReLU {
				for _, v := range y.Data() {
					require.GreaterOrEqual(t, v, float32(0))
				}
			}
		})
	}
}

func TestConvUnit_Activation(t *testing.T) {
	backend := cpu.New()
	x := tensor.Randn(tensor.Shape{1, 4, 6, 6}, 9, backend)

	linear, err := NewConvUnit(ConvUnitConfig{In: 4, Out: 8, Kernel: 3, Stride: 1}, DefaultBatchNorm(), rand.NewPCG(2, 2), backend)
	require.NoError(t, err)
	assert.Nil(t, linear.Activation())

	relu, err := NewConvUnit(ConvUnitConfig{In: 4, Out: 8, Kernel: 3, Stride: 1, ReLU: true}, DefaultBatchNorm(), rand.NewPCG(2, 2), backend)
	require.NoError(t, err)
	require.NotNil(t, relu.Activation())
	assert.Equal(t, "ReLU()", relu.Activation().String())

	// Same seed, same weights: the activated unit is the linear one clamped at 0.
	want := linear.Forward(x).Data()
	got := relu.Forward(x).Data()
	hasNegative := false
	for i, v := range want {
		if v < 0 {
			hasNegative = true
			v = 0
		}
		assert.Equal(t, v, got[i])
	}
	assert.True(t, hasNegative)
}

func TestConvUnit_InvalidConfig(t *testing.T) {
	backend := cpu.New()
	src := rand.NewPCG(1, 1)
	for _, cfg := range []ConvUnitConfig{
		{In: 0, Out: 8, Kernel: 3, Stride: 1},
		{In: 4, Out: 0, Kernel: 3, Stride: 1},
		{In: 4, Out: 8, Kernel: 2, Stride: 1},
		{In: 4, Out: 8, Kernel: 3, Stride: 0},
	} {
		_, err := NewConvUnit(cfg, DefaultBatchNorm(), src, backend)
		var cerr *ConfigError
		assert.True(t, errors.As(err, &cerr), "config %+v", cfg)
	}

	_, err := NewConvUnit(ConvUnitConfig{In: 4, Out: 8, Kernel: 3, Stride: 1}, BatchNormConfig{Momentum: 0.1}, src, backend)
	var cerr *ConfigError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "ConvUnit.BatchNorm", cerr.Component)
}

func TestConvUnit_WrongChannelsPanics(t *testing.T) {
	backend := cpu.New()
	u, err := NewConvUnit(ConvUnitConfig{In: 4, Out: 8, Kernel: 3, Stride: 1}, DefaultBatchNorm(), rand.NewPCG(1, 1), backend)
	require.NoError(t, err)

	err = exceptions.TryCatch[error](func() { u.Forward(tensor.Zeros(tensor.Shape{1, 3, 8, 8}, backend)) })
	var mismatch *tensor.ShapeMismatchError
	assert.True(t, errors.As(err, &mismatch))

	_, err = u.OutputShape(tensor.Shape{1, 3, 8, 8})
	assert.True(t, errors.As(err, &mismatch))
}

func TestBuildingBlock_Downsample(t *testing.T) {
	backend := cpu.New()
	block, err := NewBuildingBlock(BlockConfig{In: 64, Out: 128, Kernel: 3, Downsample: true}, DefaultBatchNorm(), rand.NewPCG(1, 1), backend)
	require.NoError(t, err)
	require.NotNil(t, block.Shortcut())
	assert.Len(t, block.Units(), 2)

	x := tensor.Randn(tensor.Shape{2, 64, 56, 56}, 7, backend)
	y := block.Forward(x)
	assert.Equal(t, tensor.Shape{2, 128, 28, 28}, y.Shape())
	for _, v := range y.Data() {
		require.GreaterOrEqual(t, v, float32(0))
	}

	shape, err := block.OutputShape(x.Shape())
	require.NoError(t, err)
	assert.Equal(t, y.Shape(), shape)
}

func TestBuildingBlock_Identity(t *testing.T) {
	backend := cpu.New()
	block, err := NewBuildingBlock(BlockConfig{In: 16, Out: 16, Kernel: 3}, DefaultBatchNorm(), rand.NewPCG(1, 1), backend)
	require.NoError(t, err)
	assert.Nil(t, block.Shortcut())

	y := block.Forward(tensor.Randn(tensor.Shape{1, 16, 10, 10}, 7, backend))
	assert.Equal(t, tensor.Shape{1, 16, 10, 10}, y.Shape())
	assert.NotContains(t, block.StateDict(), "shortcut.conv.weight")
}

func TestBuildingBlock_OddInputDownsample(t *testing.T) {
	backend := cpu.New()
	block, err := NewBuildingBlock(BlockConfig{In: 4, Out: 8, Kernel: 3, Downsample: true}, DefaultBatchNorm(), rand.NewPCG(1, 1), backend)
	require.NoError(t, err)

	// floor((H + 2*(k/2) - k)/2) + 1 rounds odd sizes up: 7 -> 4, 9 -> 5.
	for _, size := range []int{7, 8, 9} {
		want := (size+2*1-3)/2 + 1
		shape, err := block.OutputShape(tensor.Shape{1, 4, size, size})
		require.NoError(t, err)
		assert.Equal(t, tensor.Shape{1, 8, want, want}, shape, "size %d", size)
	}

	y := block.Forward(tensor.Randn(tensor.Shape{1, 4, 7, 7}, 2, backend))
	assert.Equal(t, tensor.Shape{1, 8, 4, 4}, y.Shape())
}

func TestBlock_MismatchFailsAtConstruction(t *testing.T) {
	backend := cpu.New()
	for _, kind := range []BlockKind{Building, Bottleneck} {
		t.Run(string(kind), func(t *testing.T) {
			_, err := NewBlock(kind, BlockConfig{In: 64, Mid: 16, Out: 128, Kernel: 3}, DefaultBatchNorm(), rand.NewPCG(1, 1), backend)
			require.Error(t, err)

			var cerr *ConfigError
			require.True(t, errors.As(err, &cerr))
			assert.Equal(t, kind.Component(), cerr.Component)

			var mismatch *tensor.ShapeMismatchError
			require.True(t, errors.As(err, &mismatch))
			assert.Equal(t, tensor.Shape{128}, mismatch.Expected)
			assert.Equal(t, tensor.Shape{64}, mismatch.Actual)
		})
	}
}

func TestBlock_MismatchPanicsAtForward(t *testing.T) {
	backend := cpu.New()
	block, err := buildBlock(Building, BlockConfig{In: 8, Out: 16, Kernel: 3}, DefaultBatchNorm(), rand.NewPCG(1, 1), backend)
	require.NoError(t, err)

	_, err = block.OutputShape(tensor.Shape{1, 8, 6, 6})
	var mismatch *tensor.ShapeMismatchError
	require.True(t, errors.As(err, &mismatch))

	err = exceptions.TryCatch[error](func() { block.Forward(tensor.Randn(tensor.Shape{1, 8, 6, 6}, 1, backend)) })
	require.True(t, errors.As(err, &mismatch), "got %v", err)
	assert.Equal(t, tensor.Shape{1, 16, 6, 6}, mismatch.Expected)
	assert.Equal(t, tensor.Shape{1, 8, 6, 6}, mismatch.Actual)
}

func TestBottleneckBlock(t *testing.T) {
	backend := cpu.New()
	block, err := NewBottleneckBlock(BlockConfig{In: 64, Mid: 32, Out: 128, Kernel: 3, Downsample: true}, DefaultBatchNorm(), rand.NewPCG(1, 1), backend)
	require.NoError(t, err)

	units := block.Units()
	require.Len(t, units, 3)
	assert.Equal(t, ConvUnitConfig{In: 64, Out: 32, Kernel: 1, Stride: 2, ReLU: true}, units[0].Config())
	assert.Equal(t, ConvUnitConfig{In: 32, Out: 32, Kernel: 3, Stride: 1, ReLU: true}, units[1].Config())
	assert.Equal(t, ConvUnitConfig{In: 32, Out: 128, Kernel: 1, Stride: 1}, units[2].Config())

	y := block.Forward(tensor.Randn(tensor.Shape{1, 64, 8, 8}, 5, backend))
	assert.Equal(t, tensor.Shape{1, 128, 4, 4}, y.Shape())

	_, err = NewBottleneckBlock(BlockConfig{In: 64, Out: 128, Kernel: 3, Downsample: true}, DefaultBatchNorm(), rand.NewPCG(1, 1), backend)
	var cerr *ConfigError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "Mid", cerr.Field)
}

func TestBlock_IndependentBatchNorms(t *testing.T) {
	backend := cpu.New()
	block, err := NewBuildingBlock(BlockConfig{In: 4, Out: 8, Kernel: 3, Downsample: true}, DefaultBatchNorm(), rand.NewPCG(1, 1), backend)
	require.NoError(t, err)

	norms := []*nn.BatchNorm2D[*cpu.CPUBackend]{
		block.Units()[0].BatchNorm(),
		block.Units()[1].BatchNorm(),
		block.Shortcut().BatchNorm(),
		block.OutputNorm(),
	}
	for i := range norms {
		for j := i + 1; j < len(norms); j++ {
			assert.NotSame(t, norms[i], norms[j])
		}
	}

	block.SetTraining(true)
	block.Forward(tensor.Randn(tensor.Shape{2, 4, 6, 6}, 3, backend))
	means := make([][]float32, len(norms))
	for i, bn := range norms {
		assert.True(t, bn.Training())
		means[i], _ = bn.RunningStats()
	}
	assert.NotEqual(t, means[0], means[1])
	assert.NotEqual(t, means[1], means[3])
}

func TestStage(t *testing.T) {
	backend := cpu.New()
	stage, err := NewStage(Building, StageConfig{In: 16, Out: 32, Blocks: 3}, 3, DefaultBatchNorm(), rand.NewPCG(1, 1), backend)
	require.NoError(t, err)

	blocks := stage.Blocks()
	require.Len(t, blocks, 3)
	assert.True(t, blocks[0].Config().Downsample)
	assert.Equal(t, 16, blocks[0].Config().In)
	for _, b := range blocks[1:] {
		assert.False(t, b.Config().Downsample)
		assert.Equal(t, 32, b.Config().In)
		assert.Equal(t, 32, b.Config().Out)
	}

	x := tensor.Randn(tensor.Shape{2, 16, 12, 12}, 1, backend)
	h := blocks[0].Forward(x)
	assert.Equal(t, tensor.Shape{2, 32, 6, 6}, h.Shape())
	h = blocks[1].Forward(h)
	assert.Equal(t, tensor.Shape{2, 32, 6, 6}, h.Shape())
	assert.Equal(t, tensor.Shape{2, 32, 6, 6}, stage.Forward(x).Shape())

	state := stage.StateDict()
	assert.Contains(t, state, "blocks.0.shortcut.conv.weight")
	assert.Contains(t, state, "blocks.2.out_bn.running_var")
	assert.NotContains(t, state, "blocks.1.shortcut.conv.weight")
}

func TestStage_NeedsBlocks(t *testing.T) {
	_, err := NewStage(Building, StageConfig{In: 16, Out: 32, Blocks: 0}, 3, DefaultBatchNorm(), rand.NewPCG(1, 1), cpu.New())
	var cerr *ConfigError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "Blocks", cerr.Field)
}

func TestNetwork_OutputShape(t *testing.T) {
	net, err := NewNetwork(smallNetworkConfig(), cpu.New())
	require.NoError(t, err)
	assert.False(t, net.Training())

	shape, err := net.OutputShape(tensor.Shape{1, 3, 224, 224})
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 10}, shape)

	_, err = net.OutputShape(tensor.Shape{1, 1, 224, 224})
	var mismatch *tensor.ShapeMismatchError
	assert.True(t, errors.As(err, &mismatch))
}

func TestNetwork_Forward224(t *testing.T) {
	if testing.Short() {
		t.Skip("full-resolution forward pass")
	}
	backend := cpu.New()
	net, err := NewNetwork(smallNetworkConfig(), backend)
	require.NoError(t, err)

	logits := net.Forward(tensor.Randn(tensor.Shape{1, 3, 224, 224}, 1, backend))
	assert.Equal(t, tensor.Shape{1, 10}, logits.Shape())
}

func TestNetwork_DeterministicEval(t *testing.T) {
	backend := cpu.New()
	cfg := smallNetworkConfig()
	a, err := NewNetwork(cfg, backend)
	require.NoError(t, err)
	b, err := NewNetwork(cfg, backend)
	require.NoError(t, err)

	x := tensor.Randn(tensor.Shape{2, 3, 32, 32}, 11, backend)
	first := a.Forward(x).Data()
	assert.Equal(t, first, a.Forward(x).Data())
	assert.Equal(t, first, b.Forward(x).Data(), "same seed, same weights")

	cfg.Seed++
	c, err := NewNetwork(cfg, backend)
	require.NoError(t, err)
	assert.NotEqual(t, first, c.Forward(x).Data())
}

func TestNetwork_TrainEval(t *testing.T) {
	backend := cpu.New()
	net, err := NewNetwork(smallNetworkConfig(), backend)
	require.NoError(t, err)

	net.Train()
	assert.True(t, net.Training())
	assert.True(t, net.Stem().BatchNorm().Training())
	last := net.Stages()[2].Blocks()[1]
	assert.True(t, last.OutputNorm().Training())

	net.Forward(tensor.Randn(tensor.Shape{2, 3, 32, 32}, 1, backend))
	mean, _ := net.Stem().BatchNorm().RunningStats()
	assert.NotEqual(t, make([]float32, len(mean)), mean)

	net.Eval()
	assert.False(t, last.Units()[0].BatchNorm().Training())
}

func TestNetwork_Parameters(t *testing.T) {
	net, err := NewNetwork(smallNetworkConfig(), cpu.New())
	require.NoError(t, err)

	params := net.Parameters()
	assert.Equal(t, tensor.Shape{64, 3, 7, 7}, params[0].Shape())
	assert.Equal(t, tensor.Shape{10}, params[len(params)-1].Shape())

	total := 0
	for _, v := range net.StateDict() {
		total += v.NumElements()
	}
	assert.Less(t, net.NumParameters(), total, "running stats are buffers, not parameters")
}

func TestNetwork_StateDictRoundTrip(t *testing.T) {
	backend := cpu.New()
	cfg := smallNetworkConfig()
	a, err := NewNetwork(cfg, backend)
	require.NoError(t, err)
	cfg.Seed = 7
	b, err := NewNetwork(cfg, backend)
	require.NoError(t, err)

	state := a.StateDict()
	for _, key := range []string{
		"stem.conv.weight",
		"stem.bn.running_mean",
		"stages.1.blocks.0.shortcut.bn.running_mean",
		"stages.2.blocks.1.conv2.conv.weight",
		"fc.weight",
		"fc.bias",
	} {
		assert.Contains(t, state, key)
	}

	require.NoError(t, b.LoadStateDict(state))
	x := tensor.Randn(tensor.Shape{1, 3, 32, 32}, 3, backend)
	assert.Equal(t, a.Forward(x).Data(), b.Forward(x).Data())

	extra := a.StateDict()
	extra["bogus.weight"] = state["fc.bias"]
	assert.ErrorIs(t, b.LoadStateDict(extra), nn.ErrUnexpectedTensor)

	missing := a.StateDict()
	delete(missing, "stages.0.blocks.1.out_bn.weight")
	assert.ErrorIs(t, b.LoadStateDict(missing), nn.ErrMissingTensor)
}

func TestNetwork_Summarize(t *testing.T) {
	net, err := NewNetwork(smallNetworkConfig(), cpu.New())
	require.NoError(t, err)

	rows, err := net.Summarize(tensor.Shape{1, 3, 224, 224})
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	assert.Equal(t, "stem", rows[0].Name)
	assert.Equal(t, tensor.Shape{1, 64, 112, 112}, rows[0].OutputShape)
	assert.Equal(t, tensor.Shape{1, 64, 56, 56}, rows[1].OutputShape)
	assert.Equal(t, "fc", rows[len(rows)-1].Name)
	assert.Equal(t, tensor.Shape{1, 10}, rows[len(rows)-1].OutputShape)

	total := 0
	for _, r := range rows {
		if r.Depth != 2 {
			total += r.Params
		}
	}
	assert.Equal(t, net.NumParameters(), total)

	shapes := map[string]tensor.Shape{}
	for _, r := range rows {
		shapes[r.Name] = r.OutputShape
	}
	assert.Equal(t, tensor.Shape{1, 128, 28, 28}, shapes["stages.1.blocks.0"])
	assert.Equal(t, tensor.Shape{1, 256, 14, 14}, shapes["stages.2.blocks.1"])
	assert.Equal(t, tensor.Shape{1, 128, 28, 28}, shapes["stages.1.blocks.0.shortcut"])
}

func TestNetwork_BottleneckVariant(t *testing.T) {
	backend := cpu.New()
	net, err := NewNetwork(NetworkConfig{
		StemWidth: 16,
		Block:     Bottleneck,
		Stages: []StageConfig{
			{In: 16, Mid: 8, Out: 32, Blocks: 1},
			{In: 32, Mid: 16, Out: 64, Blocks: 2},
		},
		NumClasses: 5,
	}, backend)
	require.NoError(t, err)

	y := net.Forward(tensor.Randn(tensor.Shape{2, 3, 32, 32}, 1, backend))
	assert.Equal(t, tensor.Shape{2, 5}, y.Shape())
	assert.Contains(t, net.StateDict(), "stages.1.blocks.1.conv3.bn.weight")
}
