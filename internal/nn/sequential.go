package nn

import (
	"strconv"

	"github.com/pkg/errors"

	"github.com/born-ml/resnet/internal/tensor"
)

// Sequential is a container module that chains multiple modules together.
//
// Each module's output becomes the next module's input. Mode switches, state
// dicts and shape inference are forwarded to every child that supports them.
//
// Example:
//
//	model := nn.NewSequential[Backend](
//	    nn.NewConv2D(3, 16, 3, 1, 1, false, src, backend),
//	    nn.NewBatchNorm2D[Backend](16, 0.1, 1e-5, backend),
//	    nn.NewReLU[Backend](),
//	)
//
//	output := model.Forward(input)
type Sequential[B tensor.Backend] struct {
	modules []Module[B]
}

// NewSequential creates a new Sequential container.
func NewSequential[B tensor.Backend](modules ...Module[B]) *Sequential[B] {
	return &Sequential[B]{
		modules: modules,
	}
}

// Forward applies all modules in sequence.
func (s *Sequential[B]) Forward(input *tensor.Tensor[B]) *tensor.Tensor[B] {
	output := input
	for _, module := range s.modules {
		output = module.Forward(output)
	}
	return output
}

// Parameters returns all learnable parameters from all modules, in order.
func (s *Sequential[B]) Parameters() []*Parameter[B] {
	var params []*Parameter[B]
	for _, module := range s.modules {
		params = append(params, module.Parameters()...)
	}
	return params
}

// SetTraining forwards the mode switch to every Trainable child.
func (s *Sequential[B]) SetTraining(training bool) {
	for _, module := range s.modules {
		SetTraining(module, training)
	}
}

// OutputShape chains shape inference through the children.
// Every child must implement ShapeInferer.
func (s *Sequential[B]) OutputShape(input tensor.Shape) (tensor.Shape, error) {
	shape := input
	for i, module := range s.modules {
		inferer, ok := module.(ShapeInferer)
		if !ok {
			return nil, errors.Errorf("sequential: module %d (%T) cannot infer shapes", i, module)
		}
		var err error
		if shape, err = inferer.OutputShape(shape); err != nil {
			return nil, errors.WithMessagef(err, "module %d", i)
		}
	}
	return shape, nil
}

// Add appends a module to the sequence.
func (s *Sequential[B]) Add(module Module[B]) {
	s.modules = append(s.modules, module)
}

// Len returns the number of modules in the sequence.
func (s *Sequential[B]) Len() int {
	return len(s.modules)
}

// Module returns the module at the given index.
//
// Panics if index is out of bounds.
func (s *Sequential[B]) Module(index int) Module[B] {
	if index < 0 || index >= len(s.modules) {
		panic("Sequential.Module: index out of bounds")
	}
	return s.modules[index]
}

// StateDict returns a map of parameter names to raw tensors.
//
// Keys are prefixed with their module index (e.g., "0.weight", "2.bias").
func (s *Sequential[B]) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)
	for i, module := range s.modules {
		if st, ok := module.(Stateful); ok {
			PrefixStateDict(stateDict, strconv.Itoa(i), st.StateDict())
		}
	}
	return stateDict
}

// LoadStateDict loads parameters from a state dictionary keyed by module index.
func (s *Sequential[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	for i, module := range s.modules {
		st, ok := module.(Stateful)
		if !ok {
			continue
		}
		if err := st.LoadStateDict(SubStateDict(stateDict, strconv.Itoa(i))); err != nil {
			return errors.WithMessagef(err, "module %d", i)
		}
	}
	return nil
}
