package model

import (
	"fmt"
	"math/rand/v2"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/resnet/internal/nn"
	"github.com/born-ml/resnet/internal/tensor"
)

// ConvUnitConfig describes a convolution + batch norm (+ ReLU) unit.
type ConvUnitConfig struct {
	In     int
	Out    int
	Kernel int
	Stride int
	ReLU   bool
}

// Padding returns the same-padding amount, Kernel/2.
func (c ConvUnitConfig) Padding() int {
	return c.Kernel / 2
}

// Validate checks channel counts, kernel and stride.
func (c ConvUnitConfig) Validate() error {
	if c.In < 1 {
		return configErrorf("ConvUnit", "In", c.In, "must be >= 1")
	}
	if c.Out < 1 {
		return configErrorf("ConvUnit", "Out", c.Out, "must be >= 1")
	}
	if err := validateKernel("ConvUnit", "Kernel", c.Kernel); err != nil {
		return err
	}
	if c.Stride < 1 {
		return configErrorf("ConvUnit", "Stride", c.Stride, "must be >= 1")
	}
	return nil
}

// ConvUnit is a bias-free convolution with same padding, followed by its own
// batch norm and an optional ReLU.
//
// Output spatial size is floor((H + 2*(k/2) - k)/s) + 1, which is ceil(H/s)
// for odd k.
type ConvUnit[B tensor.Backend] struct {
	cfg  ConvUnitConfig
	conv *nn.Conv2D[B]
	bn   *nn.BatchNorm2D[B]
	act  *nn.ReLU[B] // nil without activation
}

// NewConvUnit builds a ConvUnit. Weights are drawn from src.
func NewConvUnit[B tensor.Backend](cfg ConvUnitConfig, bnCfg BatchNormConfig, src rand.Source, backend B) (*ConvUnit[B], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := bnCfg.Validate(); err != nil {
		return nil, within("ConvUnit", err)
	}

	u := &ConvUnit[B]{
		cfg:  cfg,
		conv: nn.NewConv2D(cfg.In, cfg.Out, cfg.Kernel, cfg.Stride, cfg.Padding(), false, src, backend),
		bn:   nn.NewBatchNorm2D(cfg.Out, bnCfg.Momentum, bnCfg.Epsilon, backend),
	}
	if cfg.ReLU {
		u.act = nn.NewReLU[B]()
	}
	klog.V(2).Infof("built %s", u)
	return u, nil
}

// Forward applies conv, batch norm and the optional ReLU.
func (u *ConvUnit[B]) Forward(x *tensor.Tensor[B]) *tensor.Tensor[B] {
	y := u.bn.Forward(u.conv.Forward(x))
	if u.act != nil {
		y = u.act.Forward(y)
	}
	return y
}

// OutputShape infers the output shape. Problems are reported as *ConfigError.
func (u *ConvUnit[B]) OutputShape(in tensor.Shape) (tensor.Shape, error) {
	out, err := u.conv.OutputShape(in)
	if err != nil {
		return nil, &ConfigError{Component: "ConvUnit", Field: "input", Value: in, Err: err}
	}
	return out, nil
}

// Parameters returns the convolution weight followed by batch norm gamma and beta.
func (u *ConvUnit[B]) Parameters() []*nn.Parameter[B] {
	return append(u.conv.Parameters(), u.bn.Parameters()...)
}

// SetTraining switches the unit's batch norm.
func (u *ConvUnit[B]) SetTraining(training bool) {
	u.bn.SetTraining(training)
}

// StateDict returns "conv.*" and "bn.*" entries.
func (u *ConvUnit[B]) StateDict() map[string]*tensor.RawTensor {
	sd := make(map[string]*tensor.RawTensor)
	nn.PrefixStateDict(sd, "conv", u.conv.StateDict())
	nn.PrefixStateDict(sd, "bn", u.bn.StateDict())
	return sd
}

// LoadStateDict loads "conv.*" and "bn.*" entries.
func (u *ConvUnit[B]) LoadStateDict(sd map[string]*tensor.RawTensor) error {
	if err := u.conv.LoadStateDict(nn.SubStateDict(sd, "conv")); err != nil {
		return errors.WithMessage(err, "conv")
	}
	if err := u.bn.LoadStateDict(nn.SubStateDict(sd, "bn")); err != nil {
		return errors.WithMessage(err, "bn")
	}
	return nil
}

// Config returns the unit configuration.
func (u *ConvUnit[B]) Config() ConvUnitConfig {
	return u.cfg
}

// Conv returns the convolution layer.
func (u *ConvUnit[B]) Conv() *nn.Conv2D[B] {
	return u.conv
}

// BatchNorm returns the unit's own batch norm.
func (u *ConvUnit[B]) BatchNorm() *nn.BatchNorm2D[B] {
	return u.bn
}

// Activation returns the unit's ReLU, or nil for a linear unit.
func (u *ConvUnit[B]) Activation() *nn.ReLU[B] {
	return u.act
}

// String returns e.g. "ConvUnit(64->128, 3x3/2, relu)".
func (u *ConvUnit[B]) String() string {
	act := ""
	if u.cfg.ReLU {
		act = ", relu"
	}
	return fmt.Sprintf("ConvUnit(%d->%d, %dx%d/%d%s)", u.cfg.In, u.cfg.Out, u.cfg.Kernel, u.cfg.Kernel, u.cfg.Stride, act)
}

func (u *ConvUnit[B]) summarize(name string, in tensor.Shape, rows []LayerSummary) ([]LayerSummary, tensor.Shape, error) {
	out, err := u.OutputShape(in)
	if err != nil {
		return rows, nil, err
	}
	return append(rows, LayerSummary{
		Name:        name,
		Kind:        u.String(),
		OutputShape: out,
		Params:      nn.CountParameters(u.Parameters()),
	}), out, nil
}
