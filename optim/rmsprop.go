package optim

import (
	"sync"

	"github.com/chewxy/math32"
	"github.com/nnforge/gonn/errs"
)

// RMSProp tracks a decaying average of squared gradients:
// s = rho*s + (1-rho)*g^2; data -= lr*g/(sqrt(s)+eps).
type RMSProp struct {
	lr, rho, epsilon float32
	state            map[uintptr][]float32
	guard            sync.Mutex
}

// NewRMSProp builds an RMSProp optimizer. lr and epsilon must be
// positive; rho (the decay rate) must lie in [0,1).
func NewRMSProp(lr, rho, epsilon float32) (*RMSProp, error) {
	if lr <= 0 {
		return nil, errs.New(errs.InvalidArgument, pkg+".NewRMSProp", "learning rate must be positive, got %f", lr)
	}
	if rho < 0 || rho >= 1 {
		return nil, errs.New(errs.InvalidArgument, pkg+".NewRMSProp", "rho must be in [0,1), got %f", rho)
	}
	if epsilon <= 0 {
		return nil, errs.New(errs.InvalidArgument, pkg+".NewRMSProp", "epsilon must be positive, got %f", epsilon)
	}
	return &RMSProp{lr: lr, rho: rho, epsilon: epsilon, state: make(map[uintptr][]float32)}, nil
}

func (r *RMSProp) Update(p *Parameter) error {
	skip, err := validate(pkg+".RMSProp.Update", p)
	if err != nil || skip {
		return err
	}
	data, grad := p.Data.Data(), p.Grad.Data()

	r.guard.Lock()
	key := paramKey(p)
	s, ok := r.state[key]
	if !ok {
		s = make([]float32, len(data))
		r.state[key] = s
	}
	r.guard.Unlock()

	for i := range data {
		g := grad[i]
		s[i] = r.rho*s[i] + (1-r.rho)*g*g
		data[i] -= r.lr * g / (math32.Sqrt(s[i]) + r.epsilon)
	}
	return nil
}
