// Package optim implements the pluggable parameter-update rules: SGD,
// Momentum, AdaGrad, AdaDelta, Adam, RMSProp. Grounded on the
// teacher's pkg/core/math/learn/optimizer.go (SGD and Adam are
// adapted nearly verbatim; the remaining four are newly written
// against the same per-parameter-state, pointer-keyed idiom).
package optim

import (
	"unsafe"

	"github.com/nnforge/gonn/errs"
	"github.com/nnforge/gonn/tensor"
)

const pkg = "optim"

// Parameter is the (data, gradient) pair an Optimizer updates in
// place. RequiresGrad lets frozen layers opt out without the caller
// needing to special-case them.
type Parameter struct {
	Data         *tensor.Tensor
	Grad         *tensor.Tensor
	RequiresGrad bool
}

// Optimizer applies one update step to a single parameter tensor.
type Optimizer interface {
	Update(p *Parameter) error
}

func validate(op string, p *Parameter) (skip bool, err error) {
	if p == nil {
		return false, errs.New(errs.InvalidArgument, op, "nil parameter")
	}
	if !p.RequiresGrad {
		return true, nil
	}
	if p.Data == nil || p.Grad == nil {
		return false, errs.New(errs.InvalidArgument, op, "parameter missing data or gradient")
	}
	if !p.Data.Shape().Equal(p.Grad.Shape()) {
		return false, errs.New(errs.ShapeMismatch, op, "data shape %s does not match gradient shape %s", p.Data.Shape(), p.Grad.Shape())
	}
	return false, nil
}

// paramKey returns a stable identity for a parameter's backing array,
// used to key per-parameter optimizer state across calls even though
// the Parameter value itself may be rebuilt each step.
func paramKey(p *Parameter) uintptr {
	data := p.Data.Data()
	if len(data) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&data[0]))
}
