// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package resnet_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/resnet/backend/cpu"
	"github.com/born-ml/resnet/resnet"
	"github.com/born-ml/resnet/tensor"
)

func tinyConfig() resnet.Config {
	return resnet.Config{
		Name:      "tiny",
		StemWidth: 8,
		Stages: []resnet.StageConfig{
			{In: 8, Out: 8, Blocks: 1},
			{In: 8, Out: 16, Blocks: 2},
		},
		NumClasses: 4,
		Seed:       3,
	}
}

func TestPredict(t *testing.T) {
	backend := cpu.New()
	net := must.M1(resnet.New(tinyConfig(), backend))

	logits, err := resnet.Predict(net, tensor.Randn(tensor.Shape{2, 3, 32, 32}, 1, backend))
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 4}, logits.Shape())
	assert.Len(t, logits.Argmax(), 2)
}

func TestPredict_ShapeMismatchIsAnError(t *testing.T) {
	backend := cpu.New()
	net := must.M1(resnet.New(tinyConfig(), backend))

	_, err := resnet.Predict(net, tensor.Randn(tensor.Shape{1, 1, 32, 32}, 1, backend))
	require.Error(t, err)
	var mismatch *tensor.ShapeMismatchError
	assert.True(t, errors.As(err, &mismatch))
}

func TestNew_ConfigError(t *testing.T) {
	cfg := tinyConfig()
	cfg.Stages[1].In = 4
	_, err := resnet.New(cfg, cpu.New())

	var cerr *resnet.ConfigError
	require.True(t, errors.As(err, &cerr))
	var mismatch *tensor.ShapeMismatchError
	assert.True(t, errors.As(err, &mismatch))
}

func TestPresets(t *testing.T) {
	assert.Contains(t, resnet.Presets(), "resnet18")
	cfg, err := resnet.Preset("resnet34")
	require.NoError(t, err)
	assert.Equal(t, resnet.Building, cfg.Block)

	_, err = resnet.Preset("nope")
	assert.ErrorIs(t, err, resnet.ErrUnknownPreset)
}

func TestSaveLoad(t *testing.T) {
	backend := cpu.New()
	net := must.M1(resnet.New(tinyConfig(), backend))

	// Move the running statistics away from their initial values.
	net.Train()
	net.Forward(tensor.Randn(tensor.Shape{4, 3, 32, 32}, 2, backend))
	net.Eval()

	path := filepath.Join(t.TempDir(), "tiny.born")
	id, err := resnet.Save(net, path, resnet.SaveOptions{Metadata: map[string]string{"dataset": "none"}})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	loaded, err := resnet.Load(path, backend)
	require.NoError(t, err)
	assert.False(t, loaded.Training())
	assert.Equal(t, net.Config(), loaded.Config())

	x := tensor.Randn(tensor.Shape{2, 3, 32, 32}, 5, backend)
	want := must.M1(resnet.Predict(net, x))
	got := must.M1(resnet.Predict(loaded, x))
	assert.Equal(t, want.Data(), got.Data())

	info, err := resnet.Inspect(path)
	require.NoError(t, err)
	assert.Equal(t, id, info.ModelID)
	assert.Equal(t, "none", info.Metadata["dataset"])
	assert.Equal(t, len(net.StateDict()), info.NumTensors)
	assert.False(t, info.Half)
}

func TestSaveLoad_Half(t *testing.T) {
	backend := cpu.New()
	net := must.M1(resnet.New(tinyConfig(), backend))

	path := filepath.Join(t.TempDir(), "tiny16.born")
	_, err := resnet.Save(net, path, resnet.SaveOptions{Half: true, ModelID: "fixed-id"})
	require.NoError(t, err)

	info := must.M1(resnet.Inspect(path))
	assert.True(t, info.Half)
	assert.Equal(t, "fixed-id", info.ModelID)

	loaded := must.M1(resnet.Load(path, backend))
	x := tensor.Randn(tensor.Shape{1, 3, 32, 32}, 5, backend)
	assert.InDeltaSlice(t, net.Forward(x).Data(), loaded.Forward(x).Data(), 5e-2)
}

func TestLoad_Corrupted(t *testing.T) {
	backend := cpu.New()
	net := must.M1(resnet.New(tinyConfig(), backend))
	path := filepath.Join(t.TempDir(), "tiny.born")
	must.M1(resnet.Save(net, path, resnet.SaveOptions{}))

	data := must.M1(os.ReadFile(path))
	data[len(data)-3] ^= 0x5A
	must.M(os.WriteFile(path, data, 0o600))

	_, err := resnet.Load(path, backend)
	assert.ErrorIs(t, err, resnet.ErrChecksumMismatch)

	copy(data, "NOPE")
	must.M(os.WriteFile(path, data, 0o600))
	_, err = resnet.Load(path, backend)
	assert.ErrorIs(t, err, resnet.ErrInvalidMagic)
}

func TestRead(t *testing.T) {
	backend := cpu.New()
	net := must.M1(resnet.New(tinyConfig(), backend))
	path := filepath.Join(t.TempDir(), "tiny.born")
	id := must.M1(resnet.Save(net, path, resnet.SaveOptions{Half: true}))

	data := must.M1(os.ReadFile(path))
	loaded, info, err := resnet.Read(bytes.NewReader(data), backend)
	require.NoError(t, err)
	assert.Equal(t, id, info.ModelID)
	assert.True(t, info.Half)
	assert.Equal(t, net.Config(), loaded.Config())

	data[len(data)-1] ^= 0x01
	_, _, err = resnet.Read(bytes.NewReader(data), backend)
	assert.ErrorIs(t, err, resnet.ErrChecksumMismatch)
}

func TestInspectWithOptions_Quick(t *testing.T) {
	backend := cpu.New()
	net := must.M1(resnet.New(tinyConfig(), backend))
	path := filepath.Join(t.TempDir(), "tiny.born")
	id := must.M1(resnet.Save(net, path, resnet.SaveOptions{}))

	data := must.M1(os.ReadFile(path))
	data[len(data)-1] ^= 0x01
	must.M(os.WriteFile(path, data, 0o600))

	_, err := resnet.Inspect(path)
	assert.ErrorIs(t, err, resnet.ErrChecksumMismatch)

	info, err := resnet.InspectWithOptions(path, resnet.InspectOptions{Quick: true})
	require.NoError(t, err)
	assert.Equal(t, id, info.ModelID)
	assert.Equal(t, "tiny", info.Config.Name)
}
