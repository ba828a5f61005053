package model

import (
	"fmt"
	"strings"
)

// ConfigError reports an invalid architecture parameter.
//
// Err, when set, is the underlying cause. Channel mismatches carry a
// *tensor.ShapeMismatchError there so errors.As finds either type.
type ConfigError struct {
	Component string // e.g. "BuildingBlock", "Stage", "Network"
	Field     string // e.g. "Out", "Blocks"
	Value     any
	Reason    string
	Err       error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "invalid %s configuration", e.Component)
	if e.Field != "" {
		fmt.Fprintf(&b, ": %s=%v", e.Field, e.Value)
	}
	if e.Reason != "" {
		fmt.Fprintf(&b, ": %s", e.Reason)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

func configErrorf(component, field string, value any, format string, args ...any) *ConfigError {
	return &ConfigError{
		Component: component,
		Field:     field,
		Value:     value,
		Reason:    fmt.Sprintf(format, args...),
	}
}

// within re-labels a nested ConfigError with its position in a container,
// e.g. "Stage[2].BuildingBlock[0]". Other errors are wrapped as causes.
func within(component string, err error) *ConfigError {
	if ce, ok := err.(*ConfigError); ok {
		out := *ce
		out.Component = component + "." + ce.Component
		return &out
	}
	return &ConfigError{Component: component, Err: err}
}
