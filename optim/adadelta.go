package optim

import (
	"sync"

	"github.com/chewxy/math32"
	"github.com/nnforge/gonn/errs"
)

type adaDeltaState struct {
	accGrad   []float32
	accUpdate []float32
}

// AdaDelta extends AdaGrad by restricting the accumulation window to
// a decaying average and by using the running update magnitude in
// place of a manually tuned learning rate:
//
//	s = rho*s + (1-rho)*g^2
//	delta = sqrt(u+eps)/sqrt(s+eps) * g
//	u = rho*u + (1-rho)*delta^2
//	data -= delta
type AdaDelta struct {
	rho, epsilon float32
	state        map[uintptr]*adaDeltaState
	guard        sync.Mutex
}

// NewAdaDelta builds an AdaDelta optimizer. rho must lie in [0,1);
// epsilon must be positive.
func NewAdaDelta(rho, epsilon float32) (*AdaDelta, error) {
	if rho < 0 || rho >= 1 {
		return nil, errs.New(errs.InvalidArgument, pkg+".NewAdaDelta", "rho must be in [0,1), got %f", rho)
	}
	if epsilon <= 0 {
		return nil, errs.New(errs.InvalidArgument, pkg+".NewAdaDelta", "epsilon must be positive, got %f", epsilon)
	}
	return &AdaDelta{rho: rho, epsilon: epsilon, state: make(map[uintptr]*adaDeltaState)}, nil
}

func (a *AdaDelta) Update(p *Parameter) error {
	skip, err := validate(pkg+".AdaDelta.Update", p)
	if err != nil || skip {
		return err
	}
	data, grad := p.Data.Data(), p.Grad.Data()

	a.guard.Lock()
	key := paramKey(p)
	st, ok := a.state[key]
	if !ok {
		st = &adaDeltaState{accGrad: make([]float32, len(data)), accUpdate: make([]float32, len(data))}
		a.state[key] = st
	}
	a.guard.Unlock()

	for i := range data {
		g := grad[i]
		st.accGrad[i] = a.rho*st.accGrad[i] + (1-a.rho)*g*g
		delta := math32.Sqrt(st.accUpdate[i]+a.epsilon) / math32.Sqrt(st.accGrad[i]+a.epsilon) * g
		st.accUpdate[i] = a.rho*st.accUpdate[i] + (1-a.rho)*delta*delta
		data[i] -= delta
	}
	return nil
}
