package model

import (
	"fmt"
	"math/rand/v2"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/resnet/internal/nn"
	"github.com/born-ml/resnet/internal/tensor"
)

// Stem max-pool geometry.
const (
	stemPoolKernel  = 3
	stemPoolStride  = 2
	stemPoolPadding = 1
)

// Network is a complete residual classifier:
//
//	stem ConvUnit (stride 2) -> MaxPool 3/2 -> stages -> GlobalAvgPool -> Linear
//
// A new Network is in eval mode.
type Network[B tensor.Backend] struct {
	cfg      NetworkConfig
	backend  B
	stem     *ConvUnit[B]
	pool     *nn.MaxPool2D[B]
	stages   []*Stage[B]
	gap      *nn.GlobalAvgPool2D[B]
	fc       *nn.Linear[B]
	training bool
}

// NewNetwork applies defaults, validates cfg and builds the network.
// Initialization is deterministic for a given cfg.Seed.
func NewNetwork[B tensor.Backend](cfg NetworkConfig, backend B) (*Network[B], error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	src := rand.NewPCG(cfg.Seed, cfg.Seed)
	stem, err := NewConvUnit(ConvUnitConfig{
		In:     cfg.InputChannels,
		Out:    cfg.StemWidth,
		Kernel: cfg.StemKernel,
		Stride: 2,
		ReLU:   true,
	}, cfg.BatchNorm, src, backend)
	if err != nil {
		return nil, within("Network.stem", err)
	}

	n := &Network[B]{
		cfg:     cfg,
		backend: backend,
		stem:    stem,
		pool:    nn.NewMaxPool2D(stemPoolKernel, stemPoolStride, stemPoolPadding, backend),
		gap:     nn.NewGlobalAvgPool2D(backend),
	}
	for i, sc := range cfg.Stages {
		s, err := NewStage(cfg.Block, sc, cfg.Kernel, cfg.BatchNorm, src, backend)
		if err != nil {
			return nil, within(fmt.Sprintf("Network.Stage[%d]", i), err)
		}
		n.stages = append(n.stages, s)
	}
	n.fc = nn.NewLinear(cfg.FeatureWidth(), cfg.NumClasses, src, backend)

	klog.V(1).Infof("built network %q: %d stages, %d parameters on %s",
		cfg.Name, len(n.stages), n.NumParameters(), backend.Name())
	return n, nil
}

// Forward maps [N, InputChannels, H, W] images to [N, NumClasses] logits.
//
// Shape violations panic with *tensor.ShapeMismatchError; use resnet.Predict
// to get them back as errors.
func (n *Network[B]) Forward(x *tensor.Tensor[B]) *tensor.Tensor[B] {
	h := n.pool.Forward(n.stem.Forward(x))
	for _, s := range n.stages {
		h = s.Forward(h)
	}
	return n.fc.Forward(n.gap.Forward(h))
}

// OutputShape runs static shape inference over the whole graph.
func (n *Network[B]) OutputShape(in tensor.Shape) (tensor.Shape, error) {
	shape, err := n.stem.OutputShape(in)
	if err != nil {
		return nil, within("Network.stem", err)
	}
	if shape, err = n.pool.OutputShape(shape); err != nil {
		return nil, &ConfigError{Component: "Network.pool", Field: "input", Value: shape, Err: err}
	}
	for i, s := range n.stages {
		if shape, err = s.OutputShape(shape); err != nil {
			return nil, within(fmt.Sprintf("Network.Stage[%d]", i), err)
		}
	}
	if shape, err = n.gap.OutputShape(shape); err != nil {
		return nil, &ConfigError{Component: "Network.gap", Field: "input", Value: shape, Err: err}
	}
	if shape, err = n.fc.OutputShape(shape); err != nil {
		return nil, &ConfigError{Component: "Network.fc", Field: "input", Value: shape, Err: err}
	}
	return shape, nil
}

// Train puts every batch norm into training mode.
func (n *Network[B]) Train() {
	n.SetTraining(true)
}

// Eval puts every batch norm into eval mode.
func (n *Network[B]) Eval() {
	n.SetTraining(false)
}

// SetTraining switches every batch norm in the network.
func (n *Network[B]) SetTraining(training bool) {
	n.training = training
	n.stem.SetTraining(training)
	for _, s := range n.stages {
		s.SetTraining(training)
	}
}

// Training reports whether the network is in training mode.
func (n *Network[B]) Training() bool {
	return n.training
}

// Parameters returns every learnable parameter: stem, stages, classifier.
func (n *Network[B]) Parameters() []*nn.Parameter[B] {
	params := n.stem.Parameters()
	for _, s := range n.stages {
		params = append(params, s.Parameters()...)
	}
	return append(params, n.fc.Parameters()...)
}

// NumParameters returns the total number of learnable scalars.
func (n *Network[B]) NumParameters() int {
	return nn.CountParameters(n.Parameters())
}

// StateDict returns parameters and batch norm buffers under hierarchical
// keys such as "stem.conv.weight",
// "stages.1.blocks.0.shortcut.bn.running_mean" and "fc.bias".
func (n *Network[B]) StateDict() map[string]*tensor.RawTensor {
	sd := make(map[string]*tensor.RawTensor)
	nn.PrefixStateDict(sd, "stem", n.stem.StateDict())
	for i, s := range n.stages {
		nn.PrefixStateDict(sd, fmt.Sprintf("stages.%d", i), s.StateDict())
	}
	nn.PrefixStateDict(sd, "fc", n.fc.StateDict())
	return sd
}

// LoadStateDict copies every tensor in sd into the network. Missing keys,
// unknown keys and shape mismatches are errors.
func (n *Network[B]) LoadStateDict(sd map[string]*tensor.RawTensor) error {
	if err := nn.CheckStateDictKeys(sd, n.StateDict()); err != nil {
		return err
	}
	if err := n.stem.LoadStateDict(nn.SubStateDict(sd, "stem")); err != nil {
		return errors.WithMessage(err, "stem")
	}
	for i, s := range n.stages {
		name := fmt.Sprintf("stages.%d", i)
		if err := s.LoadStateDict(nn.SubStateDict(sd, name)); err != nil {
			return errors.WithMessage(err, name)
		}
	}
	if err := n.fc.LoadStateDict(nn.SubStateDict(sd, "fc")); err != nil {
		return errors.WithMessage(err, "fc")
	}
	return nil
}

// Config returns the configuration the network was built from, with
// defaults applied.
func (n *Network[B]) Config() NetworkConfig {
	return n.cfg
}

// Backend returns the compute backend.
func (n *Network[B]) Backend() B {
	return n.backend
}

// Stem returns the stem ConvUnit.
func (n *Network[B]) Stem() *ConvUnit[B] {
	return n.stem
}

// Stages returns the stages in order.
func (n *Network[B]) Stages() []*Stage[B] {
	return n.stages
}

// Classifier returns the final linear layer.
func (n *Network[B]) Classifier() *nn.Linear[B] {
	return n.fc
}

func (n *Network[B]) String() string {
	return fmt.Sprintf("Network(%s, %s, stages=%d, classes=%d)", n.cfg.Name, n.cfg.Block, len(n.stages), n.cfg.NumClasses)
}
