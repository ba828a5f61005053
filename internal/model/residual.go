package model

import (
	"fmt"
	"math/rand/v2"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/resnet/internal/nn"
	"github.com/born-ml/resnet/internal/tensor"
)

// ResidualBlock is a residual unit of either variant:
//
//	out = ReLU(BN(main(x) + shortcut(x)))
//
// The main path is two k×k ConvUnits (Building) or 1×1 reduce, k×k, 1×1
// expand (Bottleneck). The shortcut is a 1×1 stride-2 projection ConvUnit
// when the block downsamples and the identity otherwise. The post-add batch
// norm is a separate instance from every batch norm inside the ConvUnits.
type ResidualBlock[B tensor.Backend] struct {
	kind     BlockKind
	cfg      BlockConfig
	main     []*ConvUnit[B]
	shortcut *ConvUnit[B] // nil means identity
	outBN    *nn.BatchNorm2D[B]
	act      *nn.ReLU[B]
}

// NewBuildingBlock builds a two-layer residual block.
func NewBuildingBlock[B tensor.Backend](cfg BlockConfig, bnCfg BatchNormConfig, src rand.Source, backend B) (*ResidualBlock[B], error) {
	return NewBlock(Building, cfg, bnCfg, src, backend)
}

// NewBottleneckBlock builds a three-layer bottleneck residual block.
// The stride sits on the first 1×1 convolution.
func NewBottleneckBlock[B tensor.Backend](cfg BlockConfig, bnCfg BatchNormConfig, src rand.Source, backend B) (*ResidualBlock[B], error) {
	return NewBlock(Bottleneck, cfg, bnCfg, src, backend)
}

// NewBlock validates cfg for kind and builds the block.
//
// A block that does not downsample but has In != Out returns a *ConfigError
// whose cause is a *tensor.ShapeMismatchError.
func NewBlock[B tensor.Backend](kind BlockKind, cfg BlockConfig, bnCfg BatchNormConfig, src rand.Source, backend B) (*ResidualBlock[B], error) {
	if err := cfg.Validate(kind); err != nil {
		return nil, err
	}
	if err := bnCfg.Validate(); err != nil {
		return nil, within(kind.Component(), err)
	}
	return buildBlock(kind, cfg, bnCfg, src, backend)
}

// buildBlock assembles the block without checking that the identity shortcut
// fits the main path.
func buildBlock[B tensor.Backend](kind BlockKind, cfg BlockConfig, bnCfg BatchNormConfig, src rand.Source, backend B) (*ResidualBlock[B], error) {
	stride := 1
	if cfg.Downsample {
		stride = 2
	}

	var units []ConvUnitConfig
	switch kind {
	case Building:
		units = []ConvUnitConfig{
			{In: cfg.In, Out: cfg.Out, Kernel: cfg.Kernel, Stride: stride, ReLU: true},
			{In: cfg.Out, Out: cfg.Out, Kernel: cfg.Kernel, Stride: 1},
		}
	case Bottleneck:
		units = []ConvUnitConfig{
			{In: cfg.In, Out: cfg.Mid, Kernel: 1, Stride: stride, ReLU: true},
			{In: cfg.Mid, Out: cfg.Mid, Kernel: cfg.Kernel, Stride: 1, ReLU: true},
			{In: cfg.Mid, Out: cfg.Out, Kernel: 1, Stride: 1},
		}
	default:
		return nil, configErrorf(kind.Component(), "Kind", kind, "must be %q or %q", Building, Bottleneck)
	}

	b := &ResidualBlock[B]{kind: kind, cfg: cfg}
	for i, uc := range units {
		u, err := NewConvUnit(uc, bnCfg, src, backend)
		if err != nil {
			return nil, within(fmt.Sprintf("%s.conv%d", kind.Component(), i+1), err)
		}
		b.main = append(b.main, u)
	}
	if cfg.Downsample {
		sc, err := NewConvUnit(ConvUnitConfig{In: cfg.In, Out: cfg.Out, Kernel: 1, Stride: 2}, bnCfg, src, backend)
		if err != nil {
			return nil, within(kind.Component()+".shortcut", err)
		}
		b.shortcut = sc
	}
	b.outBN = nn.NewBatchNorm2D(cfg.Out, bnCfg.Momentum, bnCfg.Epsilon, backend)
	b.act = nn.NewReLU[B]()

	klog.V(1).Infof("built %s", b)
	return b, nil
}

// Forward runs the main path and the shortcut, adds them, then applies the
// output batch norm and ReLU.
//
// Panics with *tensor.ShapeMismatchError if the two paths disagree.
func (b *ResidualBlock[B]) Forward(x *tensor.Tensor[B]) *tensor.Tensor[B] {
	sc := x
	out := x
	for _, u := range b.main {
		out = u.Forward(out)
	}
	if b.shortcut != nil {
		sc = b.shortcut.Forward(x)
	}
	return b.act.Forward(b.outBN.Forward(out.Add(sc)))
}

// OutputShape infers the output shape, checking that both paths agree.
func (b *ResidualBlock[B]) OutputShape(in tensor.Shape) (tensor.Shape, error) {
	out := in
	for i, u := range b.main {
		var err error
		if out, err = u.OutputShape(out); err != nil {
			return nil, within(fmt.Sprintf("%s.conv%d", b.kind.Component(), i+1), err)
		}
	}
	sc := in
	if b.shortcut != nil {
		var err error
		if sc, err = b.shortcut.OutputShape(in); err != nil {
			return nil, within(b.kind.Component()+".shortcut", err)
		}
	}
	if !out.Equal(sc) {
		return nil, &ConfigError{
			Component: b.kind.Component(),
			Field:     "input",
			Value:     in,
			Reason:    "main path and shortcut disagree",
			Err:       &tensor.ShapeMismatchError{Op: "residual add", Expected: out, Actual: sc},
		}
	}
	return out, nil
}

// Parameters returns the main path, shortcut and output norm parameters, in
// that order.
func (b *ResidualBlock[B]) Parameters() []*nn.Parameter[B] {
	var params []*nn.Parameter[B]
	for _, u := range b.main {
		params = append(params, u.Parameters()...)
	}
	if b.shortcut != nil {
		params = append(params, b.shortcut.Parameters()...)
	}
	return append(params, b.outBN.Parameters()...)
}

// SetTraining switches every batch norm in the block.
func (b *ResidualBlock[B]) SetTraining(training bool) {
	for _, u := range b.main {
		u.SetTraining(training)
	}
	if b.shortcut != nil {
		b.shortcut.SetTraining(training)
	}
	b.outBN.SetTraining(training)
}

// StateDict returns entries under "conv1", "conv2", ["conv3"], ["shortcut"]
// and "out_bn".
func (b *ResidualBlock[B]) StateDict() map[string]*tensor.RawTensor {
	sd := make(map[string]*tensor.RawTensor)
	for i, u := range b.main {
		nn.PrefixStateDict(sd, fmt.Sprintf("conv%d", i+1), u.StateDict())
	}
	if b.shortcut != nil {
		nn.PrefixStateDict(sd, "shortcut", b.shortcut.StateDict())
	}
	nn.PrefixStateDict(sd, "out_bn", b.outBN.StateDict())
	return sd
}

// LoadStateDict loads entries written by StateDict.
func (b *ResidualBlock[B]) LoadStateDict(sd map[string]*tensor.RawTensor) error {
	for i, u := range b.main {
		name := fmt.Sprintf("conv%d", i+1)
		if err := u.LoadStateDict(nn.SubStateDict(sd, name)); err != nil {
			return errors.WithMessage(err, name)
		}
	}
	if b.shortcut != nil {
		if err := b.shortcut.LoadStateDict(nn.SubStateDict(sd, "shortcut")); err != nil {
			return errors.WithMessage(err, "shortcut")
		}
	}
	if err := b.outBN.LoadStateDict(nn.SubStateDict(sd, "out_bn")); err != nil {
		return errors.WithMessage(err, "out_bn")
	}
	return nil
}

// Kind returns the block variant.
func (b *ResidualBlock[B]) Kind() BlockKind {
	return b.kind
}

// Config returns the block configuration.
func (b *ResidualBlock[B]) Config() BlockConfig {
	return b.cfg
}

// Units returns the main-path ConvUnits in order.
func (b *ResidualBlock[B]) Units() []*ConvUnit[B] {
	return b.main
}

// Shortcut returns the projection unit, or nil for an identity shortcut.
func (b *ResidualBlock[B]) Shortcut() *ConvUnit[B] {
	return b.shortcut
}

// OutputNorm returns the post-add batch norm.
func (b *ResidualBlock[B]) OutputNorm() *nn.BatchNorm2D[B] {
	return b.outBN
}

// String returns e.g. "BuildingBlock(64->128, downsample)".
func (b *ResidualBlock[B]) String() string {
	ds := ""
	if b.cfg.Downsample {
		ds = ", downsample"
	}
	if b.kind == Bottleneck {
		return fmt.Sprintf("%s(%d->%d->%d%s)", b.kind.Component(), b.cfg.In, b.cfg.Mid, b.cfg.Out, ds)
	}
	return fmt.Sprintf("%s(%d->%d%s)", b.kind.Component(), b.cfg.In, b.cfg.Out, ds)
}

func (b *ResidualBlock[B]) summarize(name string, in tensor.Shape, rows []LayerSummary) ([]LayerSummary, tensor.Shape, error) {
	out, err := b.OutputShape(in)
	if err != nil {
		return rows, nil, err
	}
	rows = append(rows, LayerSummary{
		Name:        name,
		Kind:        b.String(),
		OutputShape: out,
		Params:      nn.CountParameters(b.Parameters()),
		Depth:       1,
	})
	shape := in
	for i, u := range b.main {
		if rows, shape, err = u.summarize(fmt.Sprintf("%s.conv%d", name, i+1), shape, rows); err != nil {
			return rows, nil, err
		}
	}
	for j := len(rows) - len(b.main); j < len(rows); j++ {
		rows[j].Depth = 2
	}
	if b.shortcut != nil {
		if rows, _, err = b.shortcut.summarize(name+".shortcut", in, rows); err != nil {
			return rows, nil, err
		}
		rows[len(rows)-1].Depth = 2
	}
	return rows, out, nil
}
