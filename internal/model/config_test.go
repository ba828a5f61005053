package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/resnet/internal/tensor"
)

func TestNetworkConfig_WithDefaults(t *testing.T) {
	cfg := NetworkConfig{StemWidth: 64}.WithDefaults()
	assert.Equal(t, DefaultInputChannels, cfg.InputChannels)
	assert.Equal(t, DefaultStemKernel, cfg.StemKernel)
	assert.Equal(t, DefaultKernel, cfg.Kernel)
	assert.Equal(t, Building, cfg.Block)
	assert.Equal(t, DefaultBatchNorm(), cfg.BatchNorm)
}

func TestNetworkConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*NetworkConfig)
		component string
		field     string
		mismatch  bool
	}{
		{"no stages", func(c *NetworkConfig) { c.Stages = nil }, "Network", "Stages", false},
		{"zero classes", func(c *NetworkConfig) { c.NumClasses = 0 }, "Network", "NumClasses", false},
		{"even kernel", func(c *NetworkConfig) { c.Kernel = 4 }, "Network", "Kernel", false},
		{"unknown block", func(c *NetworkConfig) { c.Block = "dense" }, "Network", "Block", false},
		{"bad epsilon", func(c *NetworkConfig) { c.BatchNorm.Epsilon = -1 }, "Network.BatchNorm", "Epsilon", false},
		{"broken chain", func(c *NetworkConfig) { c.Stages[1].In = 32 }, "Network.Stage[1]", "In", true},
		{"first stage off stem", func(c *NetworkConfig) { c.Stages[0].In = 32 }, "Network.Stage[0]", "In", true},
		{"shrinking width", func(c *NetworkConfig) {
			c.Stages = append(c.Stages, StageConfig{In: 256, Out: 128, Blocks: 1})
		}, "Network.Stage[3]", "Out", false},
		{"empty stage", func(c *NetworkConfig) { c.Stages[2].Blocks = 0 }, "Network.Stage[2].Stage", "Blocks", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := smallNetworkConfig().WithDefaults()
			tt.mutate(&cfg)
			err := cfg.Validate()

			var cerr *ConfigError
			require.True(t, errors.As(err, &cerr), "got %v", err)
			assert.Equal(t, tt.component, cerr.Component)
			assert.Equal(t, tt.field, cerr.Field)

			var mismatch *tensor.ShapeMismatchError
			assert.Equal(t, tt.mismatch, errors.As(err, &mismatch))
		})
	}

	assert.NoError(t, smallNetworkConfig().WithDefaults().Validate())
}

func TestStageConfig_BlockConfigs(t *testing.T) {
	configs := StageConfig{In: 64, Mid: 32, Out: 128, Blocks: 3}.BlockConfigs(3)
	require.Len(t, configs, 3)
	assert.Equal(t, BlockConfig{In: 64, Mid: 32, Out: 128, Kernel: 3, Downsample: true}, configs[0])
	assert.Equal(t, BlockConfig{In: 128, Mid: 32, Out: 128, Kernel: 3}, configs[1])
	assert.Equal(t, configs[1], configs[2])

	assert.Empty(t, StageConfig{In: 64, Out: 128, Blocks: -1}.BlockConfigs(3))
}

func TestConfigError_Message(t *testing.T) {
	err := BlockConfig{In: 64, Out: 128, Kernel: 3}.Validate(Building)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid BuildingBlock configuration: Out=128")
	assert.Contains(t, err.Error(), "expected (128), got (64)")
}
