// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package resnet

import (
	"encoding/json"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/resnet/internal/serialization"
	"github.com/born-ml/resnet/tensor"
)

// ModelType is recorded in every checkpoint header.
const ModelType = "resnet"

// Sentinel errors for checkpoint files.
var (
	ErrInvalidMagic       = serialization.ErrInvalidMagic
	ErrChecksumMismatch   = serialization.ErrChecksumMismatch
	ErrUnsupportedVersion = serialization.ErrUnsupportedVersion
	ErrNotResNet          = errors.New("checkpoint does not hold a resnet model")
)

// SaveOptions controls checkpoint encoding.
type SaveOptions struct {
	Half     bool              // store weights as float16
	ModelID  string            // defaults to a fresh UUID
	Metadata map[string]string // free-form key/value pairs
}

// CheckpointInfo describes a checkpoint without loading its weights.
type CheckpointInfo struct {
	ModelID       string
	EngineVersion string
	CreatedAt     time.Time
	Config        Config
	Half          bool
	NumTensors    int
	Metadata      map[string]string
}

// Save writes the network's configuration and state dict to path.
// It returns the model ID stored in the file.
func Save[B tensor.Backend](net *Network[B], path string, opts SaveOptions) (string, error) {
	cfgJSON, err := json.Marshal(net.Config())
	if err != nil {
		return "", errors.Wrap(err, "failed to encode config")
	}
	id := opts.ModelID
	if id == "" {
		id = uuid.NewString()
	}

	w, err := serialization.NewWriter(path)
	if err != nil {
		return "", err
	}
	header := serialization.Header{
		ModelType: ModelType,
		ModelID:   id,
		Config:    cfgJSON,
		Metadata:  opts.Metadata,
	}
	if err := w.WriteStateDict(net.StateDict(), header, serialization.WriteOptions{Half: opts.Half}); err != nil {
		_ = w.Close()
		return "", errors.WithMessagef(err, "failed to save %s", path)
	}
	if err := w.Close(); err != nil {
		return "", errors.Wrapf(err, "failed to close %s", path)
	}
	klog.V(1).Infof("saved model %s to %s", id, path)
	return id, nil
}

// Load rebuilds the network recorded in a checkpoint and loads its weights.
// The returned network is in eval mode.
func Load[B tensor.Backend](path string, backend B) (*Network[B], error) {
	r, err := serialization.NewReader(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	sd, err := r.ReadStateDict()
	if err != nil {
		return nil, err
	}
	net, err := restore(r.Header(), sd, backend)
	if err != nil {
		return nil, errors.WithMessagef(err, "checkpoint %s", path)
	}
	klog.V(1).Infof("loaded model %s from %s", r.Header().ModelID, path)
	return net, nil
}

// Read is Load for a checkpoint streamed from r, such as standard input.
// It also returns the checkpoint's header information.
func Read[B tensor.Backend](r io.Reader, backend B) (*Network[B], CheckpointInfo, error) {
	sd, h, err := serialization.ReadFrom(r)
	if err != nil {
		return nil, CheckpointInfo{}, err
	}
	net, err := restore(h, sd, backend)
	if err != nil {
		return nil, CheckpointInfo{}, err
	}
	klog.V(1).Infof("read model %s", h.ModelID)
	return net, newCheckpointInfo(h, net.Config(), storedHalf(h)), nil
}

func restore[B tensor.Backend](h serialization.Header, sd map[string]*tensor.RawTensor, backend B) (*Network[B], error) {
	cfg, err := checkpointConfig(h)
	if err != nil {
		return nil, err
	}
	net, err := New(cfg, backend)
	if err != nil {
		return nil, err
	}
	if err := net.LoadStateDict(sd); err != nil {
		return nil, err
	}
	return net, nil
}

// InspectOptions controls how much of a checkpoint Inspect verifies.
type InspectOptions struct {
	// Quick skips the checksum and tensor offset checks, reading only the
	// header. Load still verifies everything.
	Quick bool
}

// Inspect reads a checkpoint's header and verifies the whole file.
func Inspect(path string) (CheckpointInfo, error) {
	return InspectWithOptions(path, InspectOptions{})
}

// InspectWithOptions reads a checkpoint's header.
func InspectWithOptions(path string, opts InspectOptions) (CheckpointInfo, error) {
	ropts := serialization.ReaderOptions{ValidationLevel: serialization.ValidationStrict}
	if opts.Quick {
		ropts = serialization.ReaderOptions{SkipChecksumValidation: true, ValidationLevel: serialization.ValidationNormal}
	}
	r, err := serialization.NewReaderWithOptions(path, ropts)
	if err != nil {
		return CheckpointInfo{}, err
	}
	defer func() { _ = r.Close() }()

	h := r.Header()
	cfg, err := checkpointConfig(h)
	if err != nil {
		return CheckpointInfo{}, errors.WithMessage(err, path)
	}
	return newCheckpointInfo(h, cfg, r.Half()), nil
}

func newCheckpointInfo(h serialization.Header, cfg Config, half bool) CheckpointInfo {
	return CheckpointInfo{
		ModelID:       h.ModelID,
		EngineVersion: h.EngineVersion,
		CreatedAt:     h.CreatedAt,
		Config:        cfg,
		Half:          half,
		NumTensors:    len(h.Tensors),
		Metadata:      h.Metadata,
	}
}

func storedHalf(h serialization.Header) bool {
	for _, t := range h.Tensors {
		if t.DType == serialization.DTypeFloat16 {
			return true
		}
	}
	return false
}

func checkpointConfig(h serialization.Header) (Config, error) {
	if h.ModelType != ModelType {
		return Config{}, errors.Wrapf(ErrNotResNet, "model type %q", h.ModelType)
	}
	var cfg Config
	if err := json.Unmarshal(h.Config, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "failed to decode config")
	}
	return cfg, nil
}
