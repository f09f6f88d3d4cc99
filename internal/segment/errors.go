package segment

import (
	"errors"
	"fmt"
)

// Caller input errors. They are recoverable: fix the input and call again.
var (
	ErrDimensionMismatch = errors.New("dimension mismatch")
	ErrNoLabels          = errors.New("label map has no positive ids")
	ErrEmptyImage        = errors.New("image is empty")
	ErrUnknownOption     = errors.New("unknown option")
	ErrAmbiguousOption   = errors.New("ambiguous option")
	ErrInvalidValue      = errors.New("invalid option value")
	ErrAllocation        = errors.New("buffer allocation failed")
)

// InputError reports a problem with caller-supplied data.
type InputError struct {
	Op  string
	Err error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("segmentation input error in %s: %v", e.Op, e.Err)
}

func (e *InputError) Unwrap() error { return e.Err }

// InternalError reports a broken invariant inside the engine, such as a
// corrupted relabel table. Processing stops; the result must be discarded.
type InternalError struct {
	Op     string
	Detail string
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("segmentation internal error in %s: %s (bug)", e.Op, e.Detail)
}

// bug aborts the current run. It is recovered at the Run boundary.
func bug(op, format string, args ...any) {
	panic(&InternalError{Op: op, Detail: fmt.Sprintf(format, args...)})
}

// IsInternal reports whether err is an engine consistency bug.
func IsInternal(err error) bool {
	var ie *InternalError
	return errors.As(err, &ie)
}
