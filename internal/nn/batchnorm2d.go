package nn

import (
	"fmt"
	"math"
	"sync"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"

	"github.com/born-ml/resnet/internal/tensor"
)

// Batch normalization defaults.
const (
	DefaultBatchNormMomentum = 0.1
	DefaultBatchNormEpsilon  = 1e-5
)

// BatchNorm2D normalizes each channel of an [N, C, H, W] tensor.
//
//	y = (x - mean[c]) / sqrt(var[c] + eps) * weight[c] + bias[c]
//
// In training mode mean/var are the batch moments over N, H and W, and the
// running statistics move toward them:
//
//	running = (1 - momentum) * running + momentum * batch
//
// (the running variance uses the unbiased batch variance). In eval mode the
// running statistics are used and nothing is mutated.
//
// Running statistics are buffers: serialized by StateDict but not returned by
// Parameters. They are guarded by an RWMutex so concurrent eval-mode forwards
// are safe; training-mode forwards on one layer serialize their updates.
type BatchNorm2D[B tensor.Backend] struct {
	numFeatures int
	momentum    float64
	eps         float64

	weight *Parameter[B] // gamma [C], ones
	bias   *Parameter[B] // beta [C], zeros

	mu          sync.RWMutex
	runningMean *tensor.RawTensor // [C], zeros
	runningVar  *tensor.RawTensor // [C], ones
	training    bool

	backend B
}

// NewBatchNorm2D creates a batch normalization layer over numFeatures channels.
// The layer starts in eval mode.
func NewBatchNorm2D[B tensor.Backend](numFeatures int, momentum, eps float64, backend B) *BatchNorm2D[B] {
	if numFeatures <= 0 {
		exceptions.Panicf("batchnorm2d: invalid num_features %d", numFeatures)
	}
	if momentum < 0 || momentum > 1 {
		exceptions.Panicf("batchnorm2d: momentum %g outside [0, 1]", momentum)
	}
	if eps <= 0 {
		exceptions.Panicf("batchnorm2d: eps must be positive, got %g", eps)
	}

	shape := tensor.Shape{numFeatures}
	return &BatchNorm2D[B]{
		numFeatures: numFeatures,
		momentum:    momentum,
		eps:         eps,
		weight:      NewParameter("weight", Ones(shape, backend)),
		bias:        NewParameter("bias", Zeros(shape, backend)),
		runningMean: Zeros(shape, backend).Raw(),
		runningVar:  Ones(shape, backend).Raw(),
		backend:     backend,
	}
}

// Forward normalizes input according to the current mode.
func (bn *BatchNorm2D[B]) Forward(input *tensor.Tensor[B]) *tensor.Tensor[B] {
	shape := input.Shape()
	if len(shape) != 4 {
		exceptions.Panicf("batchnorm2d: expected 4D input [N,C,H,W], got %dD", len(shape))
	}
	if shape[1] != bn.numFeatures {
		panic(&tensor.ShapeMismatchError{
			Op:       "batchnorm2d input",
			Expected: shape.WithChannels(bn.numFeatures),
			Actual:   shape.Clone(),
		})
	}

	var mean, variance []float32
	if bn.Training() {
		meanRaw, varRaw := bn.backend.ChannelMoments(input.Raw())
		mean, variance = meanRaw.Float32(), varRaw.Float32()
		bn.updateRunningStats(mean, variance, shape.NumElements()/bn.numFeatures)
	} else {
		bn.mu.RLock()
		mean = append([]float32(nil), bn.runningMean.Float32()...)
		variance = append([]float32(nil), bn.runningVar.Float32()...)
		bn.mu.RUnlock()
	}

	scale, shift := bn.affine(mean, variance)
	return tensor.New(bn.backend.ChannelAffine(input.Raw(), scale, shift), bn.backend)
}

// affine folds the normalization and gamma/beta into one per-channel
// scale and shift.
func (bn *BatchNorm2D[B]) affine(mean, variance []float32) (scale, shift *tensor.RawTensor) {
	shape := tensor.Shape{bn.numFeatures}
	scale = Zeros(shape, bn.backend).Raw()
	shift = Zeros(shape, bn.backend).Raw()
	gamma := bn.weight.Tensor().Data()
	beta := bn.bias.Tensor().Data()
	sd, hd := scale.Float32(), shift.Float32()
	for c := range sd {
		inv := 1 / math.Sqrt(float64(variance[c])+bn.eps)
		s := float64(gamma[c]) * inv
		sd[c] = float32(s)
		hd[c] = float32(float64(beta[c]) - float64(mean[c])*s)
	}
	return scale, shift
}

func (bn *BatchNorm2D[B]) updateRunningStats(mean, variance []float32, count int) {
	correction := 1.0
	if count > 1 {
		correction = float64(count) / float64(count-1)
	}
	m := bn.momentum

	bn.mu.Lock()
	defer bn.mu.Unlock()
	rm, rv := bn.runningMean.Float32(), bn.runningVar.Float32()
	for c := range rm {
		rm[c] = float32((1-m)*float64(rm[c]) + m*float64(mean[c]))
		rv[c] = float32((1-m)*float64(rv[c]) + m*float64(variance[c])*correction)
	}
}

// OutputShape returns the input shape after checking the channel count.
func (bn *BatchNorm2D[B]) OutputShape(input tensor.Shape) (tensor.Shape, error) {
	if len(input) != 4 {
		return nil, errors.Errorf("batchnorm2d: expected 4D input [N,C,H,W], got %v", input)
	}
	if input[1] != bn.numFeatures {
		return nil, &tensor.ShapeMismatchError{
			Op:       "batchnorm2d input",
			Expected: input.WithChannels(bn.numFeatures),
			Actual:   input.Clone(),
		}
	}
	return input.Clone(), nil
}

// SetTraining switches between batch statistics (true) and running statistics (false).
func (bn *BatchNorm2D[B]) SetTraining(training bool) {
	bn.mu.Lock()
	bn.training = training
	bn.mu.Unlock()
}

// Training reports whether the layer is in training mode.
func (bn *BatchNorm2D[B]) Training() bool {
	bn.mu.RLock()
	defer bn.mu.RUnlock()
	return bn.training
}

// RunningStats returns copies of the running mean and variance.
func (bn *BatchNorm2D[B]) RunningStats() (mean, variance []float32) {
	bn.mu.RLock()
	defer bn.mu.RUnlock()
	return append([]float32(nil), bn.runningMean.Float32()...),
		append([]float32(nil), bn.runningVar.Float32()...)
}

// Parameters returns gamma and beta.
func (bn *BatchNorm2D[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{bn.weight, bn.bias}
}

// Weight returns the gamma parameter.
func (bn *BatchNorm2D[B]) Weight() *Parameter[B] {
	return bn.weight
}

// Bias returns the beta parameter.
func (bn *BatchNorm2D[B]) Bias() *Parameter[B] {
	return bn.bias
}

// StateDict returns parameters and running statistics.
func (bn *BatchNorm2D[B]) StateDict() map[string]*tensor.RawTensor {
	bn.mu.RLock()
	defer bn.mu.RUnlock()
	return map[string]*tensor.RawTensor{
		"weight":       bn.weight.Tensor().Raw(),
		"bias":         bn.bias.Tensor().Raw(),
		"running_mean": bn.runningMean.Clone(),
		"running_var":  bn.runningVar.Clone(),
	}
}

// LoadStateDict loads parameters and running statistics.
func (bn *BatchNorm2D[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	if err := loadTensor(bn.weight.Tensor().Raw(), stateDict, "weight"); err != nil {
		return err
	}
	if err := loadTensor(bn.bias.Tensor().Raw(), stateDict, "bias"); err != nil {
		return err
	}

	bn.mu.Lock()
	defer bn.mu.Unlock()
	if err := loadTensor(bn.runningMean, stateDict, "running_mean"); err != nil {
		return err
	}
	return loadTensor(bn.runningVar, stateDict, "running_var")
}

// NumFeatures returns the channel count.
func (bn *BatchNorm2D[B]) NumFeatures() int {
	return bn.numFeatures
}

// String returns a string representation of the layer.
func (bn *BatchNorm2D[B]) String() string {
	return fmt.Sprintf("BatchNorm2D(num_features=%d, eps=%g, momentum=%g)", bn.numFeatures, bn.eps, bn.momentum)
}
