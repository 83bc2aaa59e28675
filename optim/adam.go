package optim

import (
	"sync"

	"github.com/chewxy/math32"
	"github.com/nnforge/gonn/errs"
)

type adamState struct {
	m, v []float32
	step int
}

// Adam combines momentum and RMSProp-style per-parameter scaling.
// Adapted from pkg/core/math/learn/optimizer.go's Adam, generalized
// from its tensor.Tensor-keyed state to a plain []float32, since this
// module's Parameter already owns its shape.
type Adam struct {
	lr, beta1, beta2, epsilon float32
	state                     map[uintptr]*adamState
	guard                     sync.Mutex
}

// NewAdam builds an Adam optimizer. lr and epsilon must be positive;
// beta1 and beta2 must lie in [0,1).
func NewAdam(lr, beta1, beta2, epsilon float32) (*Adam, error) {
	if lr <= 0 {
		return nil, errs.New(errs.InvalidArgument, pkg+".NewAdam", "learning rate must be positive, got %f", lr)
	}
	if beta1 < 0 || beta1 >= 1 {
		return nil, errs.New(errs.InvalidArgument, pkg+".NewAdam", "beta1 must be in [0,1), got %f", beta1)
	}
	if beta2 < 0 || beta2 >= 1 {
		return nil, errs.New(errs.InvalidArgument, pkg+".NewAdam", "beta2 must be in [0,1), got %f", beta2)
	}
	if epsilon <= 0 {
		return nil, errs.New(errs.InvalidArgument, pkg+".NewAdam", "epsilon must be positive, got %f", epsilon)
	}
	return &Adam{lr: lr, beta1: beta1, beta2: beta2, epsilon: epsilon, state: make(map[uintptr]*adamState)}, nil
}

func (a *Adam) Update(p *Parameter) error {
	skip, err := validate(pkg+".Adam.Update", p)
	if err != nil || skip {
		return err
	}
	data, grad := p.Data.Data(), p.Grad.Data()

	a.guard.Lock()
	key := paramKey(p)
	st, ok := a.state[key]
	if !ok {
		st = &adamState{m: make([]float32, len(data)), v: make([]float32, len(data))}
		a.state[key] = st
	}
	st.step++
	step := st.step
	a.guard.Unlock()

	biasCorrection1 := 1 - math32.Pow(a.beta1, float32(step))
	biasCorrection2 := 1 - math32.Pow(a.beta2, float32(step))

	for i := range data {
		g := grad[i]
		st.m[i] = a.beta1*st.m[i] + (1-a.beta1)*g
		st.v[i] = a.beta2*st.v[i] + (1-a.beta2)*g*g

		mHat := st.m[i] / biasCorrection1
		vHat := st.v[i] / biasCorrection2

		data[i] -= a.lr * mHat / (math32.Sqrt(vHat) + a.epsilon)
	}
	return nil
}
