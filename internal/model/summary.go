package model

import (
	"fmt"

	"github.com/born-ml/resnet/internal/nn"
	"github.com/born-ml/resnet/internal/tensor"
)

// LayerSummary is one row of a network summary.
type LayerSummary struct {
	Name        string // hierarchical name, e.g. "stages.1.blocks.0.conv2"
	Kind        string
	OutputShape tensor.Shape
	Params      int
	Depth       int // 0 for top-level rows, 1 for blocks, 2 for units inside blocks
}

// Summarize walks the network for the given input shape and returns one row
// per top-level layer, residual block and block unit.
func (n *Network[B]) Summarize(in tensor.Shape) ([]LayerSummary, error) {
	rows, shape, err := n.stem.summarize("stem", in, nil)
	if err != nil {
		return nil, within("Network.stem", err)
	}

	if shape, err = n.pool.OutputShape(shape); err != nil {
		return nil, &ConfigError{Component: "Network.pool", Field: "input", Value: shape, Err: err}
	}
	rows = append(rows, LayerSummary{Name: "pool", Kind: n.pool.String(), OutputShape: shape})

	for i, s := range n.stages {
		if rows, shape, err = s.summarize(fmt.Sprintf("stages.%d", i), shape, rows); err != nil {
			return nil, within(fmt.Sprintf("Network.Stage[%d]", i), err)
		}
	}

	if shape, err = n.gap.OutputShape(shape); err != nil {
		return nil, &ConfigError{Component: "Network.gap", Field: "input", Value: shape, Err: err}
	}
	rows = append(rows, LayerSummary{Name: "gap", Kind: n.gap.String(), OutputShape: shape})

	if shape, err = n.fc.OutputShape(shape); err != nil {
		return nil, &ConfigError{Component: "Network.fc", Field: "input", Value: shape, Err: err}
	}
	rows = append(rows, LayerSummary{
		Name:        "fc",
		Kind:        n.fc.String(),
		OutputShape: shape,
		Params:      nn.CountParameters(n.fc.Parameters()),
	})
	return rows, nil
}
