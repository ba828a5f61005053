package model

import (
	"strconv"

	"github.com/born-ml/resnet/internal/nn"
	"github.com/born-ml/resnet/internal/tensor"
)

// BlockKind selects the residual block variant used throughout a network.
type BlockKind string

// Residual block variants.
const (
	// Building is two k×k ConvUnits.
	Building BlockKind = "building"
	// Bottleneck is 1×1 reduce, k×k at the middle width, 1×1 expand.
	Bottleneck BlockKind = "bottleneck"
)

// Component returns the name used for the variant in errors and summaries.
func (k BlockKind) Component() string {
	switch k {
	case Building:
		return "BuildingBlock"
	case Bottleneck:
		return "BottleneckBlock"
	default:
		return "Block(" + string(k) + ")"
	}
}

// Valid reports whether k names a known variant.
func (k BlockKind) Valid() bool {
	return k == Building || k == Bottleneck
}

// BatchNormConfig holds the settings shared by every batch norm in a network.
type BatchNormConfig struct {
	Momentum float64 `yaml:"momentum" json:"momentum"`
	Epsilon  float64 `yaml:"epsilon" json:"epsilon"`
}

// DefaultBatchNorm returns momentum 0.1 and epsilon 1e-5.
func DefaultBatchNorm() BatchNormConfig {
	return BatchNormConfig{
		Momentum: nn.DefaultBatchNormMomentum,
		Epsilon:  nn.DefaultBatchNormEpsilon,
	}
}

// Validate checks the batch norm settings.
func (c BatchNormConfig) Validate() error {
	if c.Momentum < 0 || c.Momentum > 1 {
		return configErrorf("BatchNorm", "Momentum", c.Momentum, "must be in [0, 1]")
	}
	if c.Epsilon <= 0 {
		return configErrorf("BatchNorm", "Epsilon", c.Epsilon, "must be positive")
	}
	return nil
}

// BlockConfig describes one residual block.
//
// Mid is used only by the bottleneck variant. When Downsample is false the
// block uses an identity shortcut, which requires In == Out.
type BlockConfig struct {
	In         int  `yaml:"in" json:"in"`
	Mid        int  `yaml:"mid,omitempty" json:"mid,omitempty"`
	Out        int  `yaml:"out" json:"out"`
	Kernel     int  `yaml:"kernel" json:"kernel"`
	Downsample bool `yaml:"downsample" json:"downsample"`
}

// Validate checks c for the given variant.
func (c BlockConfig) Validate(kind BlockKind) error {
	component := kind.Component()
	if !kind.Valid() {
		return configErrorf(component, "Kind", kind, "must be %q or %q", Building, Bottleneck)
	}
	if c.In < 1 {
		return configErrorf(component, "In", c.In, "must be >= 1")
	}
	if c.Out < 1 {
		return configErrorf(component, "Out", c.Out, "must be >= 1")
	}
	if kind == Bottleneck && c.Mid < 1 {
		return configErrorf(component, "Mid", c.Mid, "must be >= 1")
	}
	if err := validateKernel(component, "Kernel", c.Kernel); err != nil {
		return err
	}
	if !c.Downsample && c.In != c.Out {
		return &ConfigError{
			Component: component,
			Field:     "Out",
			Value:     c.Out,
			Reason:    "identity shortcut requires In == Out when the block does not downsample",
			Err: &tensor.ShapeMismatchError{
				Op:       "residual add channels",
				Expected: tensor.Shape{c.Out},
				Actual:   tensor.Shape{c.In},
			},
		}
	}
	return nil
}

// StageConfig describes a stage of Blocks residual blocks.
type StageConfig struct {
	In     int `yaml:"in" json:"in"`
	Mid    int `yaml:"mid,omitempty" json:"mid,omitempty"`
	Out    int `yaml:"out" json:"out"`
	Blocks int `yaml:"blocks" json:"blocks"`
}

// BlockConfigs expands the stage into per-block configurations: block 0
// downsamples In -> Out, the rest keep Out -> Out.
func (s StageConfig) BlockConfigs(kernel int) []BlockConfig {
	configs := make([]BlockConfig, 0, max(s.Blocks, 0))
	for i := 0; i < s.Blocks; i++ {
		c := BlockConfig{In: s.Out, Mid: s.Mid, Out: s.Out, Kernel: kernel}
		if i == 0 {
			c.In = s.In
			c.Downsample = true
		}
		configs = append(configs, c)
	}
	return configs
}

// Validate checks the stage for the given block variant and kernel size.
func (s StageConfig) Validate(kind BlockKind, kernel int) error {
	if s.Blocks < 1 {
		return configErrorf("Stage", "Blocks", s.Blocks, "a stage needs at least one block")
	}
	for i, c := range s.BlockConfigs(kernel) {
		if err := c.Validate(kind); err != nil {
			return within("Block["+strconv.Itoa(i)+"]", err)
		}
	}
	return nil
}

// NetworkConfig describes a whole network.
type NetworkConfig struct {
	Name          string          `yaml:"name" json:"name"`
	InputChannels int             `yaml:"input_channels" json:"input_channels"`
	StemWidth     int             `yaml:"stem_width" json:"stem_width"`
	StemKernel    int             `yaml:"stem_kernel" json:"stem_kernel"`
	Kernel        int             `yaml:"kernel" json:"kernel"`
	Block         BlockKind       `yaml:"block" json:"block"`
	Stages        []StageConfig   `yaml:"stages" json:"stages"`
	NumClasses    int             `yaml:"num_classes" json:"num_classes"`
	BatchNorm     BatchNormConfig `yaml:"batch_norm" json:"batch_norm"`
	Seed          uint64          `yaml:"seed" json:"seed"`
}

// Architecture defaults filled in by WithDefaults.
const (
	DefaultInputChannels = 3
	DefaultStemKernel    = 7
	DefaultKernel        = 3
)

// WithDefaults returns a copy of c with zero-valued optional fields set:
// 3 input channels, 7×7 stem, 3×3 block kernels, building blocks, default
// batch norm.
func (c NetworkConfig) WithDefaults() NetworkConfig {
	if c.InputChannels == 0 {
		c.InputChannels = DefaultInputChannels
	}
	if c.StemKernel == 0 {
		c.StemKernel = DefaultStemKernel
	}
	if c.Kernel == 0 {
		c.Kernel = DefaultKernel
	}
	if c.Block == "" {
		c.Block = Building
	}
	if c.BatchNorm == (BatchNormConfig{}) {
		c.BatchNorm = DefaultBatchNorm()
	}
	c.Stages = append([]StageConfig(nil), c.Stages...)
	return c
}

// Validate checks every field and the stage chain: the first stage consumes
// the stem width, each later stage consumes its predecessor's width, and
// widths never decrease.
func (c NetworkConfig) Validate() error {
	if c.InputChannels < 1 {
		return configErrorf("Network", "InputChannels", c.InputChannels, "must be >= 1")
	}
	if c.StemWidth < 1 {
		return configErrorf("Network", "StemWidth", c.StemWidth, "must be >= 1")
	}
	if err := validateKernel("Network", "StemKernel", c.StemKernel); err != nil {
		return err
	}
	if err := validateKernel("Network", "Kernel", c.Kernel); err != nil {
		return err
	}
	if !c.Block.Valid() {
		return configErrorf("Network", "Block", c.Block, "must be %q or %q", Building, Bottleneck)
	}
	if c.NumClasses < 1 {
		return configErrorf("Network", "NumClasses", c.NumClasses, "must be >= 1")
	}
	if err := c.BatchNorm.Validate(); err != nil {
		return within("Network", err)
	}
	if len(c.Stages) == 0 {
		return configErrorf("Network", "Stages", 0, "at least one stage is required")
	}

	width := c.StemWidth
	for i, s := range c.Stages {
		name := "Network.Stage[" + strconv.Itoa(i) + "]"
		if s.In != width {
			return &ConfigError{
				Component: name,
				Field:     "In",
				Value:     s.In,
				Reason:    "must equal the previous output width " + strconv.Itoa(width),
				Err: &tensor.ShapeMismatchError{
					Op:       "stage input channels",
					Expected: tensor.Shape{width},
					Actual:   tensor.Shape{s.In},
				},
			}
		}
		if i > 0 && s.Out < c.Stages[i-1].Out {
			return configErrorf(name, "Out", s.Out, "stage widths must be non-decreasing (previous %d)", c.Stages[i-1].Out)
		}
		if err := s.Validate(c.Block, c.Kernel); err != nil {
			return within(name, err)
		}
		width = s.Out
	}
	return nil
}

// FeatureWidth returns the channel count entering the classifier head.
func (c NetworkConfig) FeatureWidth() int {
	if len(c.Stages) == 0 {
		return c.StemWidth
	}
	return c.Stages[len(c.Stages)-1].Out
}

func validateKernel(component, field string, k int) error {
	if k < 1 || k%2 == 0 {
		return configErrorf(component, field, k, "kernel size must be a positive odd number for same padding")
	}
	return nil
}
