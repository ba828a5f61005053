package nn

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/born-ml/resnet/internal/tensor"
)

// ErrMissingTensor is returned when a state dict lacks a required key.
var ErrMissingTensor = errors.New("missing tensor in state dict")

// ErrUnexpectedTensor is returned by strict loads when a state dict carries
// keys no component claims.
var ErrUnexpectedTensor = errors.New("unexpected tensor in state dict")

// PrefixStateDict copies src into dst with every key prefixed by "prefix.".
func PrefixStateDict(dst map[string]*tensor.RawTensor, prefix string, src map[string]*tensor.RawTensor) {
	for name, raw := range src {
		dst[prefix+"."+name] = raw
	}
}

// SubStateDict returns the entries of stateDict under "prefix." with the
// prefix stripped.
func SubStateDict(stateDict map[string]*tensor.RawTensor, prefix string) map[string]*tensor.RawTensor {
	sub := make(map[string]*tensor.RawTensor)
	p := prefix + "."
	for key, raw := range stateDict {
		if name, ok := strings.CutPrefix(key, p); ok {
			sub[name] = raw
		}
	}
	return sub
}

// CheckStateDictKeys reports the first key in stateDict that is not in want.
func CheckStateDictKeys(stateDict, want map[string]*tensor.RawTensor) error {
	for key := range stateDict {
		if _, ok := want[key]; !ok {
			return errors.Wrapf(ErrUnexpectedTensor, "key %q", key)
		}
	}
	return nil
}

// loadTensor copies stateDict[key] into dst after checking its shape.
func loadTensor(dst *tensor.RawTensor, stateDict map[string]*tensor.RawTensor, key string) error {
	src, ok := stateDict[key]
	if !ok {
		return errors.Wrapf(ErrMissingTensor, "key %q", key)
	}
	if !src.Shape().Equal(dst.Shape()) {
		return errors.Wrapf(&tensor.ShapeMismatchError{
			Op:       "load " + key,
			Expected: dst.Shape().Clone(),
			Actual:   src.Shape().Clone(),
		}, "key %q", key)
	}
	copy(dst.Float32(), src.Float32())
	return nil
}
