package config

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/born-ml/resnet/internal/model"
)

// ErrUnknownPreset is returned when a preset name is not registered.
var ErrUnknownPreset = errors.New("unknown preset")

// DefaultPreset is used by the CLI when neither a preset nor a file is given.
const DefaultPreset = "small"

var presets = map[string]func() model.NetworkConfig{
	"small":     small,
	"resnet18":  func() model.NetworkConfig { return building("resnet18", 2, 2, 2, 2) },
	"resnet34":  func() model.NetworkConfig { return building("resnet34", 3, 4, 6, 3) },
	"resnet50":  func() model.NetworkConfig { return bottleneck("resnet50", 3, 4, 6, 3) },
	"resnet101": func() model.NetworkConfig { return bottleneck("resnet101", 3, 4, 23, 3) },
	"resnet152": func() model.NetworkConfig { return bottleneck("resnet152", 3, 8, 36, 3) },
}

// Preset returns a copy of the named configuration with defaults applied.
func Preset(name string) (model.NetworkConfig, error) {
	build, ok := presets[name]
	if !ok {
		return model.NetworkConfig{}, errors.Wrapf(ErrUnknownPreset, "%q (known: %v)", name, PresetNames())
	}
	return build().WithDefaults(), nil
}

// PresetNames returns the registered preset names in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// small is a three-stage, 10-class network: stem 64, then 64->64, 64->128
// and 128->256 with two building blocks each.
func small() model.NetworkConfig {
	return model.NetworkConfig{
		Name:      "small",
		StemWidth: 64,
		Block:     model.Building,
		Stages: []model.StageConfig{
			{In: 64, Out: 64, Blocks: 2},
			{In: 64, Out: 128, Blocks: 2},
			{In: 128, Out: 256, Blocks: 2},
		},
		NumClasses: 10,
	}
}

func building(name string, blocks ...int) model.NetworkConfig {
	widths := []int{64, 128, 256, 512}
	cfg := model.NetworkConfig{Name: name, StemWidth: 64, Block: model.Building, NumClasses: 1000}
	in := cfg.StemWidth
	for i, n := range blocks {
		cfg.Stages = append(cfg.Stages, model.StageConfig{In: in, Out: widths[i], Blocks: n})
		in = widths[i]
	}
	return cfg
}

func bottleneck(name string, blocks ...int) model.NetworkConfig {
	mids := []int{64, 128, 256, 512}
	const expansion = 4
	cfg := model.NetworkConfig{Name: name, StemWidth: 64, Block: model.Bottleneck, NumClasses: 1000}
	in := cfg.StemWidth
	for i, n := range blocks {
		out := mids[i] * expansion
		cfg.Stages = append(cfg.Stages, model.StageConfig{In: in, Mid: mids[i], Out: out, Blocks: n})
		in = out
	}
	return cfg
}
