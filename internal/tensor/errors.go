package tensor

import "fmt"

// ShapeMismatchError reports two tensor shapes that an operation required to
// agree, such as the operands of a residual addition.
type ShapeMismatchError struct {
	Op       string // Operation that detected the mismatch (e.g., "add").
	Expected Shape
	Actual   Shape
}

// Error implements the error interface.
func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("%s: shape mismatch: expected %v, got %v", e.Op, e.Expected, e.Actual)
}

// CheckSameShape panics with a *ShapeMismatchError if a and b differ.
// No broadcasting is ever attempted.
func CheckSameShape(op string, a, b Shape) {
	if !a.Equal(b) {
		panic(&ShapeMismatchError{Op: op, Expected: a.Clone(), Actual: b.Clone()})
	}
}
