// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package resnet builds residual convolutional image classifiers.
//
// # Overview
//
// A network is described by a Config and built on a compute backend:
//
//	stem ConvUnit (k×k, stride 2) -> MaxPool 3/2 -> stages -> GlobalAvgPool -> Linear
//
// Each stage is a run of residual blocks. The first block of a stage halves
// the spatial size and changes the width through a 1×1 projection shortcut;
// the remaining blocks keep both and use identity shortcuts. Every
// convolution uses "same" padding k/2, so a stride-2 layer maps H to
// ceil(H/2).
//
// # Basic Usage
//
//	backend := cpu.New()
//	net, err := resnet.New(resnet.Config{
//	    StemWidth: 64,
//	    Stages: []resnet.StageConfig{
//	        {In: 64, Out: 64, Blocks: 2},
//	        {In: 64, Out: 128, Blocks: 2},
//	        {In: 128, Out: 256, Blocks: 2},
//	    },
//	    NumClasses: 10,
//	}, backend)
//	if err != nil {
//	    return err
//	}
//	logits, err := resnet.Predict(net, tensor.Randn(tensor.Shape{1, 3, 224, 224}, 1, backend))
//
// # Errors
//
// Invalid architectures are rejected at construction with *ConfigError.
// Shape problems found while running a forward pass panic inside the engine
// with *tensor.ShapeMismatchError; Predict recovers them into errors.
package resnet

import (
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"

	"github.com/born-ml/resnet/internal/config"
	"github.com/born-ml/resnet/internal/model"
	"github.com/born-ml/resnet/tensor"
)

// Config describes a whole network.
type Config = model.NetworkConfig

// StageConfig describes one stage.
type StageConfig = model.StageConfig

// BlockConfig describes one residual block.
type BlockConfig = model.BlockConfig

// BatchNormConfig holds batch norm momentum and epsilon.
type BatchNormConfig = model.BatchNormConfig

// BlockKind selects the residual block variant.
type BlockKind = model.BlockKind

// Block variants.
const (
	Building   = model.Building
	Bottleneck = model.Bottleneck
)

// ConfigError reports an invalid architecture parameter.
type ConfigError = model.ConfigError

// Network is a built residual network on backend B.
type Network[B tensor.Backend] = model.Network[B]

// LayerSummary is one row of Network.Summarize.
type LayerSummary = model.LayerSummary

// ErrUnknownPreset is returned by Preset for unregistered names.
var ErrUnknownPreset = config.ErrUnknownPreset

// New validates cfg and builds a network. Weights are initialized from
// cfg.Seed, so equal configs build identical networks. The network starts
// in eval mode.
func New[B tensor.Backend](cfg Config, backend B) (*Network[B], error) {
	return model.NewNetwork(cfg, backend)
}

// Preset returns a named built-in configuration such as "resnet18".
func Preset(name string) (Config, error) {
	return config.Preset(name)
}

// Presets returns the names of the built-in configurations.
func Presets() []string {
	return config.PresetNames()
}

// LoadConfig reads a YAML configuration file.
func LoadConfig(path string) (Config, error) {
	return config.Load(path)
}

// Predict runs a forward pass and returns logits of shape
// [batch, NumClasses]. The network's current train/eval mode is used.
//
// Shape mismatches are returned as errors wrapping
// *tensor.ShapeMismatchError instead of panicking.
func Predict[B tensor.Backend](net *Network[B], x *tensor.Tensor[B]) (*tensor.Tensor[B], error) {
	var logits *tensor.Tensor[B]
	err := exceptions.TryCatch[error](func() {
		logits = net.Forward(x)
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "predict on input %v", x.Shape())
	}
	return logits, nil
}
