package model

import (
	"fmt"
	"math/rand/v2"

	"k8s.io/klog/v2"

	"github.com/born-ml/resnet/internal/nn"
	"github.com/born-ml/resnet/internal/tensor"
)

// Stage is a run of residual blocks at one resolution. Block 0 downsamples
// and changes the width from In to Out; the remaining blocks keep Out.
type Stage[B tensor.Backend] struct {
	cfg    StageConfig
	kind   BlockKind
	blocks []*ResidualBlock[B]
	seq    *nn.Sequential[B]
}

// NewStage builds cfg.Blocks blocks of the given kind.
func NewStage[B tensor.Backend](kind BlockKind, cfg StageConfig, kernel int, bnCfg BatchNormConfig, src rand.Source, backend B) (*Stage[B], error) {
	if err := cfg.Validate(kind, kernel); err != nil {
		return nil, err
	}

	s := &Stage[B]{cfg: cfg, kind: kind, seq: nn.NewSequential[B]()}
	for i, bc := range cfg.BlockConfigs(kernel) {
		block, err := NewBlock(kind, bc, bnCfg, src, backend)
		if err != nil {
			return nil, within(fmt.Sprintf("Stage.Block[%d]", i), err)
		}
		s.blocks = append(s.blocks, block)
		s.seq.Add(block)
	}
	klog.V(1).Infof("built %s", s)
	return s, nil
}

// Forward applies the blocks in order.
func (s *Stage[B]) Forward(x *tensor.Tensor[B]) *tensor.Tensor[B] {
	return s.seq.Forward(x)
}

// OutputShape infers the output shape.
func (s *Stage[B]) OutputShape(in tensor.Shape) (tensor.Shape, error) {
	shape := in
	for i, b := range s.blocks {
		var err error
		if shape, err = b.OutputShape(shape); err != nil {
			return nil, within(fmt.Sprintf("Stage.Block[%d]", i), err)
		}
	}
	return shape, nil
}

// Blocks returns the stage's blocks in order.
func (s *Stage[B]) Blocks() []*ResidualBlock[B] {
	return s.blocks
}

// Config returns the stage configuration.
func (s *Stage[B]) Config() StageConfig {
	return s.cfg
}

// Parameters returns every block's parameters in order.
func (s *Stage[B]) Parameters() []*nn.Parameter[B] {
	return s.seq.Parameters()
}

// SetTraining switches every block.
func (s *Stage[B]) SetTraining(training bool) {
	s.seq.SetTraining(training)
}

// StateDict returns entries under "blocks.<i>".
func (s *Stage[B]) StateDict() map[string]*tensor.RawTensor {
	sd := make(map[string]*tensor.RawTensor)
	nn.PrefixStateDict(sd, "blocks", s.seq.StateDict())
	return sd
}

// LoadStateDict loads entries written by StateDict.
func (s *Stage[B]) LoadStateDict(sd map[string]*tensor.RawTensor) error {
	return s.seq.LoadStateDict(nn.SubStateDict(sd, "blocks"))
}

func (s *Stage[B]) String() string {
	return fmt.Sprintf("Stage(%s, %d->%d, blocks=%d)", s.kind, s.cfg.In, s.cfg.Out, len(s.blocks))
}

func (s *Stage[B]) summarize(name string, in tensor.Shape, rows []LayerSummary) ([]LayerSummary, tensor.Shape, error) {
	shape := in
	for i, b := range s.blocks {
		var err error
		if rows, shape, err = b.summarize(fmt.Sprintf("%s.blocks.%d", name, i), shape, rows); err != nil {
			return rows, nil, err
		}
	}
	return rows, shape, nil
}
