// Package config loads network configurations from YAML files and built-in
// presets.
//
// A file may name a preset and override any of its fields:
//
//	preset: resnet18
//	num_classes: 10
//	seed: 7
//
// Lists such as stages replace the preset's list entirely.
package config

import (
	"bytes"
	"io"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"

	"github.com/born-ml/resnet/internal/model"
)

type file struct {
	Preset  string              `yaml:"preset,omitempty"`
	Network model.NetworkConfig `yaml:",inline"`
}

// Parse decodes a YAML configuration, applies defaults and validates it.
// Unknown keys are rejected.
func Parse(data []byte) (model.NetworkConfig, error) {
	var head struct {
		Preset string `yaml:"preset"`
	}
	if err := yaml.Unmarshal(data, &head); err != nil {
		return model.NetworkConfig{}, errors.Wrap(err, "failed to parse config")
	}

	var f file
	if head.Preset != "" {
		base, err := Preset(head.Preset)
		if err != nil {
			return model.NetworkConfig{}, err
		}
		f.Network = base
		klog.V(1).Infof("config: starting from preset %q", head.Preset)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return model.NetworkConfig{}, errors.Wrap(err, "failed to parse config")
	}

	cfg := f.Network.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return model.NetworkConfig{}, err
	}
	return cfg, nil
}

// Load reads and parses a YAML configuration file.
func Load(path string) (model.NetworkConfig, error) {
	//nolint:gosec // G304: config path is supplied by the user
	data, err := os.ReadFile(path)
	if err != nil {
		return model.NetworkConfig{}, errors.Wrapf(err, "failed to read config %s", path)
	}
	cfg, err := Parse(data)
	if err != nil {
		return model.NetworkConfig{}, errors.WithMessagef(err, "config %s", path)
	}
	return cfg, nil
}

// Resolve picks the configuration for a command: a file when path is set,
// otherwise the named preset, otherwise DefaultPreset.
func Resolve(preset, path string) (model.NetworkConfig, error) {
	switch {
	case path != "" && preset != "":
		return model.NetworkConfig{}, errors.New("use either a preset or a config file, not both")
	case path != "":
		return Load(path)
	case preset != "":
		return Preset(preset)
	default:
		return Preset(DefaultPreset)
	}
}

// Marshal encodes cfg as YAML.
func Marshal(cfg model.NetworkConfig) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode config")
	}
	return data, nil
}
